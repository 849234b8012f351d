package release

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/crateherd/crateherd/pkg/errors"
	"github.com/crateherd/crateherd/pkg/workspace"
)

// ChangeOptions steers the changed/unchanged partition.
type ChangeOptions struct {
	// Force marks packages whose name matches the glob as changed
	// regardless of the diff.
	Force string
	// IgnoreChanges drops diffed files matching any of the globs
	// before they are attributed to a package.
	IgnoreChanges []string
	// Groups restricts the partition to the named groups; packages in
	// other groups count as unchanged.
	Groups []string
}

// Partition splits the grouped packages into changed and unchanged
// against the files diffed since the last release. An empty since
// means no release tag exists yet, so every package is changed.
func Partition(groups workspace.Groups, since string, files []string, opts ChangeOptions) (changed, unchanged []workspace.GroupedPackage, err error) {
	if opts.Force != "" {
		if !doublestar.ValidatePattern(opts.Force) {
			return nil, nil, errors.New(errors.ErrCodeInvalidPattern, "invalid force pattern %q", opts.Force)
		}
	}
	for _, pat := range opts.IgnoreChanges {
		if !doublestar.ValidatePattern(pat) {
			return nil, nil, errors.New(errors.ErrCodeInvalidPattern, "invalid ignore-changes pattern %q", pat)
		}
	}
	filter := make([]workspace.GroupName, 0, len(opts.Groups))
	for _, name := range opts.Groups {
		parsed, err := workspace.ParseGroupName(name)
		if err != nil {
			return nil, nil, err
		}
		filter = append(filter, parsed)
	}

	kept := files[:0:0]
	for _, f := range files {
		ignored := false
		for _, pat := range opts.IgnoreChanges {
			if ok, _ := doublestar.Match(pat, f); ok {
				ignored = true
				break
			}
		}
		if !ignored {
			kept = append(kept, f)
		}
	}

	for _, gp := range groups.Flatten() {
		if gp.Group.Name == workspace.GroupExcluded {
			continue
		}
		switch {
		case isChanged(gp, since, kept, filter, opts):
			changed = append(changed, gp)
		default:
			unchanged = append(unchanged, gp)
		}
	}
	return changed, unchanged, nil
}

func isChanged(gp workspace.GroupedPackage, since string, files []string, filter []workspace.GroupName, opts ChangeOptions) bool {
	if since == "" {
		return true
	}
	if opts.Force != "" {
		if ok, _ := doublestar.Match(opts.Force, gp.Pkg.Name); ok {
			return true
		}
	}
	if len(filter) > 0 {
		found := false
		for _, name := range filter {
			if name == gp.Group.Name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, f := range files {
		if underPath(gp.Pkg.Path, f) {
			return true
		}
	}
	return false
}

// underPath reports whether a repository-relative file belongs to the
// package directory. The root package has an empty path and owns every
// file.
func underPath(pkgPath, file string) bool {
	if pkgPath == "" {
		return true
	}
	return file == pkgPath || strings.HasPrefix(file, pkgPath+"/")
}

// ChangedNames collects the changed package names for planning.
func ChangedNames(changed []workspace.GroupedPackage) map[string]bool {
	names := make(map[string]bool, len(changed))
	for _, gp := range changed {
		names[gp.Pkg.Name] = true
	}
	return names
}
