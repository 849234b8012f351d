// Package workspace loads a Cargo workspace from disk and assigns its
// member crates to release groups.
package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/crateherd/crateherd/pkg/errors"
	"github.com/crateherd/crateherd/pkg/manifest"
)

// Package is one workspace member crate.
type Package struct {
	Name            string
	Version         *semver.Version
	InheritsVersion bool
	ManifestPath    string
	Dir             string
	Path            string
	Private         bool
	Registry        string
	Independent     bool
	Deps            []manifest.Dependency
}

// Workspace is the loaded view of a workspace root: its member packages
// sorted by name, the tool config, and the shared version sources.
type Workspace struct {
	Root             string
	RootManifestPath string
	Packages         []*Package
	Config           Config

	// SharedVersion is the config-level default for the default group.
	SharedVersion *semver.Version
	// InheritedVersion is [workspace.package].version, the source for
	// members declaring version.workspace = true.
	InheritedVersion *semver.Version
}

// Lookup returns the member with the given crate name, or nil.
func (ws *Workspace) Lookup(name string) *Package {
	for _, p := range ws.Packages {
		if p.Name == name {
			return p
		}
	}
	return nil
}

type rawWorkspaceSection struct {
	Members []string `toml:"members"`
	Exclude []string `toml:"exclude"`
	Package struct {
		Version string `toml:"version"`
	} `toml:"package"`
	Metadata struct {
		Crateherd Config `toml:"crateherd"`
	} `toml:"metadata"`
}

type rawRootManifest struct {
	Workspace *rawWorkspaceSection `toml:"workspace"`
	Package   *struct {
		Name string `toml:"name"`
	} `toml:"package"`
}

// FindRoot walks up from dir looking for the workspace root. The nearest
// manifest declaring [workspace] wins; failing that, the nearest plain
// Cargo.toml is treated as a single-crate workspace.
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeNotInWorkspace, err, "resolving working directory")
	}

	fallback := ""
	for d := abs; ; {
		path := filepath.Join(d, "Cargo.toml")
		if data, err := os.ReadFile(path); err == nil {
			var raw rawRootManifest
			if _, err := toml.Decode(string(data), &raw); err == nil && raw.Workspace != nil {
				return d, nil
			}
			if fallback == "" {
				fallback = d
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", errors.New(errors.ErrCodeNotInWorkspace, "no Cargo.toml found above %s", abs)
}

// Load reads the workspace rooted at root: the root manifest, the
// expanded member set, and every member manifest.
func Load(root string) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotInWorkspace, err, "resolving workspace root")
	}
	rootManifest := filepath.Join(root, "Cargo.toml")
	data, err := os.ReadFile(rootManifest)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotInWorkspace, err, "reading %s", rootManifest)
	}

	var raw rawRootManifest
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBadManifest, err, "parsing %s", rootManifest)
	}

	ws := &Workspace{Root: root, RootManifestPath: rootManifest}
	if raw.Workspace != nil {
		ws.Config = raw.Workspace.Metadata.Crateherd
	}
	if err := validateConfig(&ws.Config); err != nil {
		return nil, err
	}
	if ws.Config.Version != "" {
		v, err := semver.NewVersion(ws.Config.Version)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeBadManifest, err,
				"invalid workspace version %q", ws.Config.Version)
		}
		ws.SharedVersion = v
	}
	if raw.Workspace != nil && raw.Workspace.Package.Version != "" {
		v, err := semver.NewVersion(raw.Workspace.Package.Version)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeBadManifest, err,
				"invalid [workspace.package] version %q", raw.Workspace.Package.Version)
		}
		ws.InheritedVersion = v
	}

	dirs, err := memberDirs(root, raw)
	if err != nil {
		return nil, err
	}
	for _, rel := range dirs {
		pkg, err := loadMember(ws, rel)
		if err != nil {
			return nil, err
		}
		ws.Packages = append(ws.Packages, pkg)
	}

	sort.Slice(ws.Packages, func(i, j int) bool { return ws.Packages[i].Name < ws.Packages[j].Name })
	seen := make(map[string]string, len(ws.Packages))
	for _, p := range ws.Packages {
		if prev, ok := seen[p.Name]; ok {
			return nil, errors.New(errors.ErrCodeBadManifest,
				"package %s declared by both %s and %s", p.Name, prev, p.ManifestPath)
		}
		seen[p.Name] = p.ManifestPath
	}
	return ws, nil
}

// memberDirs expands [workspace].members against the filesystem and
// filters [workspace].exclude. Paths come back relative to root; "."
// stands for a non-virtual root package.
func memberDirs(root string, raw rawRootManifest) ([]string, error) {
	if raw.Workspace == nil {
		if raw.Package == nil {
			return nil, errors.New(errors.ErrCodeBadManifest,
				"%s has neither [workspace] nor [package]", filepath.Join(root, "Cargo.toml"))
		}
		return []string{"."}, nil
	}

	set := make(map[string]struct{})
	fsys := os.DirFS(root)
	for _, pat := range raw.Workspace.Members {
		pat = filepath.ToSlash(pat)
		if strings.HasPrefix(pat, "../") {
			return nil, errors.New(errors.ErrCodeNotInWorkspace,
				"workspace member %q is outside the workspace root %s", pat, root)
		}
		if !strings.ContainsAny(pat, "*?[{") {
			if _, err := os.Stat(filepath.Join(root, pat, "Cargo.toml")); err != nil {
				return nil, errors.New(errors.ErrCodeBadManifest,
					"workspace member %q has no Cargo.toml", pat)
			}
			set[pat] = struct{}{}
			continue
		}
		matches, err := doublestar.Glob(fsys, pat)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPattern, err,
				"invalid member pattern %q", pat)
		}
		for _, m := range matches {
			if _, err := os.Stat(filepath.Join(root, m, "Cargo.toml")); err == nil {
				set[m] = struct{}{}
			}
		}
	}
	for rel := range set {
		for _, pat := range raw.Workspace.Exclude {
			if ok, _ := doublestar.Match(filepath.ToSlash(pat), rel); ok {
				delete(set, rel)
				break
			}
		}
	}
	if raw.Package != nil {
		set["."] = struct{}{}
	}

	dirs := make([]string, 0, len(set))
	for rel := range set {
		dirs = append(dirs, rel)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func loadMember(ws *Workspace, rel string) (*Package, error) {
	dir := filepath.Join(ws.Root, rel)
	path := filepath.Join(dir, "Cargo.toml")
	m, err := manifest.Read(path)
	if err != nil {
		return nil, err
	}
	if m.Package == nil {
		return nil, errors.New(errors.ErrCodeBadManifest, "%s has no [package] section", path)
	}

	pkg := &Package{
		Name:         m.Package.Name,
		ManifestPath: path,
		Dir:          dir,
		Private:      m.Package.Publish.Private(),
		Registry:     m.Package.Publish.Registry(),
		Independent:  m.Package.Independent,
		Deps:         m.Dependencies,
	}
	if rel != "." {
		pkg.Path = filepath.ToSlash(rel)
	}

	if m.Package.Version.Workspace {
		if ws.InheritedVersion == nil {
			return nil, errors.New(errors.ErrCodeBadManifest,
				"package %s inherits the workspace version but [workspace.package] declares none", pkg.Name)
		}
		pkg.InheritsVersion = true
		pkg.Version = ws.InheritedVersion
	} else {
		v, err := semver.NewVersion(m.Package.Version.Value)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeBadManifest, err,
				"package %s has invalid version %q", pkg.Name, m.Package.Version.Value)
		}
		pkg.Version = v
	}
	return pkg, nil
}
