// Package release plans new versions for changed packages, applies the
// plan to manifests, and publishes the result in dependency order.
package release

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Bump is a non-interactive version selection.
type Bump int

const (
	BumpPatch Bump = iota
	BumpMinor
	BumpMajor
	BumpPrepatch
	BumpPreminor
	BumpPremajor
	BumpPrerelease
	BumpCustom
)

var bumpNames = map[string]Bump{
	"patch":      BumpPatch,
	"minor":      BumpMinor,
	"major":      BumpMajor,
	"prepatch":   BumpPrepatch,
	"preminor":   BumpPreminor,
	"premajor":   BumpPremajor,
	"prerelease": BumpPrerelease,
	"custom":     BumpCustom,
}

// ParseBump translates a CLI keyword into a Bump.
func ParseBump(s string) (Bump, error) {
	b, ok := bumpNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown bump %q (expected patch, minor, major, prepatch, preminor, premajor, prerelease or custom)", s)
	}
	return b, nil
}

// selected maps a Bump onto the index of the matching entry in the
// interactive version menu.
func (b Bump) selected() int {
	switch b {
	case BumpMajor:
		return 2
	case BumpMinor:
		return 1
	case BumpPatch:
		return 0
	case BumpPremajor:
		return 5
	case BumpPreminor:
		return 4
	case BumpPrepatch:
		return 3
	case BumpPrerelease:
		return 6
	default:
		return 7
	}
}

func withPre(v *semver.Version, pre string) *semver.Version {
	return semver.New(v.Major(), v.Minor(), v.Patch(), pre, "")
}

// IncPatch bumps the patch level. Releasing a prerelease just drops the
// prerelease suffix: 1.2.3-rc.0 releases as 1.2.3, not 1.2.4.
func IncPatch(v *semver.Version) *semver.Version {
	if v.Prerelease() != "" {
		return withPre(v, "")
	}
	return semver.New(v.Major(), v.Minor(), v.Patch()+1, "", "")
}

// IncMinor bumps the minor level. A prerelease of an exact minor
// (patch 0) releases as that minor instead of advancing again.
func IncMinor(v *semver.Version) *semver.Version {
	if v.Prerelease() != "" && v.Patch() == 0 {
		return withPre(v, "")
	}
	return semver.New(v.Major(), v.Minor()+1, 0, "", "")
}

// IncMajor bumps the major level, with the analogous prerelease rule
// for x.0.0 prereleases.
func IncMajor(v *semver.Version) *semver.Version {
	if v.Prerelease() != "" && v.Patch() == 0 && v.Minor() == 0 {
		return withPre(v, "")
	}
	return semver.New(v.Major()+1, 0, 0, "", "")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// incPre derives the prerelease suffix for a pre-patch/minor/major bump
// from the current suffix: keep a leading named identifier and restart
// its counter, or fall back to the requested (or "alpha") identifier.
func incPre(pre, preID string) string {
	parts := strings.Split(pre, ".")
	switch {
	case pre == "":
		if preID == "" {
			preID = "alpha"
		}
		return preID + ".0"
	case isNumeric(parts[0]):
		return "0"
	default:
		return parts[0] + ".0"
	}
}

// IncPreID moves a version to the next prerelease of the given
// identifier: increment the trailing counter when the identifier is
// unchanged, otherwise restart at <id>.0. A release version gains a
// patch bump first.
func IncPreID(cur *semver.Version, preID string) *semver.Version {
	if cur.Prerelease() == "" {
		return semver.New(cur.Major(), cur.Minor(), cur.Patch()+1, preID+".0", "")
	}

	parts := strings.Split(cur.Prerelease(), ".")
	first := parts[0]

	if !isNumeric(first) {
		if preID == first && len(parts) > 1 && isNumeric(parts[1]) {
			n, _ := strconv.ParseUint(parts[1], 10, 64)
			return withPre(cur, fmt.Sprintf("%s.%d", preID, n+1))
		}
		return withPre(cur, preID+".0")
	}

	if preID == first {
		out := make([]string, len(parts))
		copy(out, parts)
		for i := len(out) - 1; i >= 0; i-- {
			if isNumeric(out[i]) {
				n, _ := strconv.ParseUint(out[i], 10, 64)
				out[i] = strconv.FormatUint(n+1, 10)
				break
			}
		}
		return withPre(cur, strings.Join(out, "."))
	}
	return withPre(cur, preID+".0")
}

// CustomPre suggests the next prerelease continuing the current
// identifier ("alpha" for release versions), returning both.
func CustomPre(cur *semver.Version) (string, *semver.Version) {
	id := "alpha"
	if pre := cur.Prerelease(); pre != "" {
		id = strings.Split(pre, ".")[0]
	}
	return id, IncPreID(cur, id)
}

// versionOption is one entry of the interactive version menu.
type versionOption struct {
	Label   string
	Version *semver.Version
}

// versionOptions builds the six computed menu entries; the custom
// prerelease and custom version entries are appended by the caller.
func versionOptions(cur *semver.Version, preID string) []versionOption {
	var opts []versionOption
	add := func(kind string, v *semver.Version) {
		opts = append(opts, versionOption{Label: fmt.Sprintf("%s (%s)", kind, v), Version: v})
	}

	add("Patch", IncPatch(cur))
	add("Minor", IncMinor(cur))
	add("Major", IncMajor(cur))
	add("Prepatch", semver.New(cur.Major(), cur.Minor(), cur.Patch()+1, incPre(cur.Prerelease(), preID), ""))
	add("Preminor", semver.New(cur.Major(), cur.Minor()+1, 0, incPre(cur.Prerelease(), preID), ""))
	add("Premajor", semver.New(cur.Major()+1, 0, 0, incPre(cur.Prerelease(), preID), ""))
	return opts
}
