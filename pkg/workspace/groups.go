package workspace

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/crateherd/crateherd/pkg/errors"
)

// Group is a release group with the packages resolved into it. Version
// is the shared version the group carries, nil when members version
// independently of each other.
type Group struct {
	Name     GroupName
	Version  *semver.Version
	Packages []*Package
}

// Groups preserves resolution order: default first, then the custom
// groups in config order, excluded last. Empty groups are omitted.
type Groups []*Group

// Lookup returns the group with the given name, or nil.
func (gs Groups) Lookup(name GroupName) *Group {
	for _, g := range gs {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Flatten returns every package paired with its group, in group order.
func (gs Groups) Flatten() []GroupedPackage {
	var out []GroupedPackage
	for _, g := range gs {
		for _, p := range g.Packages {
			out = append(out, GroupedPackage{Group: g, Pkg: p})
		}
	}
	return out
}

type GroupedPackage struct {
	Group *Group
	Pkg   *Package
}

// ResolveGroups assigns every workspace package to exactly one group.
// Exclusion patterns win outright; otherwise the custom group member
// patterns are tested and a package matching more than one, or matching
// any while inheriting the workspace version, is an error. Packages
// matching nothing land in the default group, which carries the
// config-level shared version.
func ResolveGroups(ws *Workspace, includePrivate bool) (Groups, error) {
	groupVersions := make(map[string]*semver.Version, len(ws.Config.Groups))
	for _, gc := range ws.Config.Groups {
		if gc.Version == "" {
			continue
		}
		v, err := semver.NewVersion(gc.Version)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeBadManifest, err,
				"group %q has invalid version %q", gc.Name, gc.Version)
		}
		groupVersions[gc.Name] = v
	}

	byName := make(map[GroupName]*Group)
	var nonEmpty bool

pkgs:
	for _, pkg := range ws.Packages {
		if pkg.Private && !includePrivate {
			continue
		}

		for _, pat := range ws.Config.Exclude {
			if ok, _ := doublestar.Match(pat, pkg.Path); ok {
				assign(byName, GroupExcluded, nil, pkg)
				continue pkgs
			}
		}

		var matched []string
		for _, gc := range ws.Config.Groups {
			for _, pat := range gc.Members {
				if ok, _ := doublestar.Match(pat, pkg.Path); ok {
					matched = append(matched, gc.Name)
					break
				}
			}
		}

		nonEmpty = true

		if pkg.InheritsVersion && len(matched) > 0 {
			return nil, errors.New(errors.ErrCodeAmbiguousGroup,
				"package %s (%s) inherits the workspace version and also matches groups: %s",
				pkg.Name, pkg.Path, strings.Join(matched, ", "))
		}

		switch len(matched) {
		case 0:
			assign(byName, GroupDefault, ws.SharedVersion, pkg)
		case 1:
			name := matched[0]
			assign(byName, GroupName(name), groupVersions[name], pkg)
		default:
			return nil, errors.New(errors.ErrCodeAmbiguousGroup,
				"package %s (%s) matches multiple groups: %s",
				pkg.Name, pkg.Path, strings.Join(matched, ", "))
		}
	}

	if !nonEmpty {
		return nil, errors.New(errors.ErrCodeEmptyWorkspace, "no packages remain after exclusion")
	}

	var out Groups
	if g, ok := byName[GroupDefault]; ok {
		out = append(out, g)
	}
	for _, gc := range ws.Config.Groups {
		if g, ok := byName[GroupName(gc.Name)]; ok {
			out = append(out, g)
		}
	}
	if g, ok := byName[GroupExcluded]; ok {
		out = append(out, g)
	}
	return out, nil
}

func assign(byName map[GroupName]*Group, name GroupName, version *semver.Version, pkg *Package) {
	g, ok := byName[name]
	if !ok {
		g = &Group{Name: name, Version: version}
		byName[name] = g
	}
	g.Packages = append(g.Packages, pkg)
}
