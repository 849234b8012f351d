package manifest

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/crateherd/crateherd/pkg/errors"
)

// DepKind classifies the table a dependency was declared in.
type DepKind int

const (
	DepNormal DepKind = iota
	DepBuild
	DepDev
)

func (k DepKind) String() string {
	switch k {
	case DepBuild:
		return "build"
	case DepDev:
		return "dev"
	default:
		return "normal"
	}
}

// Dependency is a single declaration from one of the dependency tables.
// Name is the table key, which is an alias when Package is set.
type Dependency struct {
	Name      string
	Package   string
	Req       string
	Path      string
	Workspace bool
	Kind      DepKind
	Target    string
}

// CrateName returns the real crate name, resolving the rename alias.
func (d Dependency) CrateName() string {
	if d.Package != "" {
		return d.Package
	}
	return d.Name
}

// UnmarshalTOML accepts both the bare string form (dep = "1.0") and the
// table form (dep = { version = "1.0", path = "../dep", package = "x" }).
func (d *Dependency) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		d.Req = v
		return nil
	case map[string]interface{}:
		if s, ok := v["version"].(string); ok {
			d.Req = s
		}
		if s, ok := v["path"].(string); ok {
			d.Path = s
		}
		if s, ok := v["package"].(string); ok {
			d.Package = s
		}
		if b, ok := v["workspace"].(bool); ok {
			d.Workspace = b
		}
		return nil
	default:
		return fmt.Errorf("dependency must be a string or a table, got %T", data)
	}
}

// VersionField is a package version declaration: either a literal string
// or {workspace = true} inheriting the workspace-level version.
type VersionField struct {
	Value     string
	Workspace bool
}

func (f *VersionField) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		f.Value = v
		return nil
	case map[string]interface{}:
		b, ok := v["workspace"].(bool)
		if !ok || !b {
			return fmt.Errorf("version table must be { workspace = true }")
		}
		f.Workspace = true
		return nil
	default:
		return fmt.Errorf("version must be a string or { workspace = true }, got %T", data)
	}
}

// PublishField is the cargo publish key: absent (publishable anywhere),
// false (never publish), or a list of allowed registry names.
type PublishField struct {
	Set        bool
	Allowed    bool
	Registries []string
}

func (f *PublishField) UnmarshalTOML(data interface{}) error {
	f.Set = true
	switch v := data.(type) {
	case bool:
		f.Allowed = v
		return nil
	case []interface{}:
		f.Allowed = true
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("publish list must contain strings, got %T", item)
			}
			f.Registries = append(f.Registries, s)
		}
		return nil
	default:
		return fmt.Errorf("publish must be a bool or a list of registries, got %T", data)
	}
}

// Private reports whether the declaration forbids publishing entirely.
func (f PublishField) Private() bool {
	if !f.Set {
		return false
	}
	return !f.Allowed || len(f.Registries) == 0
}

// Registry returns the sole allowed registry name, if one is declared.
func (f PublishField) Registry() string {
	if len(f.Registries) == 1 {
		return f.Registries[0]
	}
	return ""
}

// Package is the decoded [package] table of a crate manifest.
type Package struct {
	Name        string
	Version     VersionField
	Publish     PublishField
	Independent bool
}

// Manifest is the decoded view of one Cargo.toml as far as release
// coordination cares: identity, publish policy, and dependency edges.
type Manifest struct {
	Path         string
	Package      *Package
	Dependencies []Dependency
}

type rawCrateMetadata struct {
	Crateherd struct {
		Independent bool `toml:"independent"`
	} `toml:"crateherd"`
}

type rawPackage struct {
	Name     string           `toml:"name"`
	Version  VersionField     `toml:"version"`
	Publish  PublishField     `toml:"publish"`
	Metadata rawCrateMetadata `toml:"metadata"`
}

type rawTarget struct {
	Dependencies      map[string]Dependency `toml:"dependencies"`
	DevDependencies   map[string]Dependency `toml:"dev-dependencies"`
	BuildDependencies map[string]Dependency `toml:"build-dependencies"`
}

type rawManifest struct {
	Package           *rawPackage           `toml:"package"`
	Dependencies      map[string]Dependency `toml:"dependencies"`
	DevDependencies   map[string]Dependency `toml:"dev-dependencies"`
	BuildDependencies map[string]Dependency `toml:"build-dependencies"`
	Target            map[string]rawTarget  `toml:"target"`
}

// Read decodes a crate manifest from disk. Virtual workspace roots come
// back with a nil Package.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBadManifest, err, "reading manifest %s", path)
	}
	return Parse(path, string(data))
}

// Parse decodes manifest text. The path is carried through for error
// messages and for Manifest.Path.
func Parse(path, doc string) (*Manifest, error) {
	var raw rawManifest
	if _, err := toml.Decode(doc, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBadManifest, err, "parsing manifest %s", path)
	}

	m := &Manifest{Path: path}
	if raw.Package != nil {
		m.Package = &Package{
			Name:        raw.Package.Name,
			Version:     raw.Package.Version,
			Publish:     raw.Package.Publish,
			Independent: raw.Package.Metadata.Crateherd.Independent,
		}
	}

	m.Dependencies = append(m.Dependencies, collect(raw.Dependencies, DepNormal, "")...)
	m.Dependencies = append(m.Dependencies, collect(raw.BuildDependencies, DepBuild, "")...)
	m.Dependencies = append(m.Dependencies, collect(raw.DevDependencies, DepDev, "")...)

	targets := make([]string, 0, len(raw.Target))
	for t := range raw.Target {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		tbl := raw.Target[t]
		m.Dependencies = append(m.Dependencies, collect(tbl.Dependencies, DepNormal, t)...)
		m.Dependencies = append(m.Dependencies, collect(tbl.BuildDependencies, DepBuild, t)...)
		m.Dependencies = append(m.Dependencies, collect(tbl.DevDependencies, DepDev, t)...)
	}
	return m, nil
}

func collect(deps map[string]Dependency, kind DepKind, target string) []Dependency {
	if len(deps) == 0 {
		return nil
	}
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Dependency, 0, len(deps))
	for _, name := range names {
		d := deps[name]
		d.Name = name
		d.Kind = kind
		d.Target = target
		out = append(out, d)
	}
	return out
}
