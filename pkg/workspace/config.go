package workspace

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/crateherd/crateherd/pkg/errors"
)

// GroupName identifies a release group. "default" and "excluded" are
// reserved; anything else names a custom group from the workspace config.
type GroupName string

const (
	GroupDefault  GroupName = "default"
	GroupExcluded GroupName = "excluded"
)

// IsCustom reports whether the name refers to a configured group rather
// than one of the two built-ins.
func (g GroupName) IsCustom() bool {
	return g != GroupDefault && g != GroupExcluded
}

func (g GroupName) String() string { return string(g) }

// ValidateGroupName rejects names that would collide with the group
// list syntax used on the command line.
func ValidateGroupName(s string) error {
	if s == "" {
		return errors.New(errors.ErrCodeInvalidGroup, "group name must not be empty")
	}
	if strings.ContainsRune(s, ':') {
		return errors.New(errors.ErrCodeInvalidGroup, "invalid character `:` in group name: %s", s)
	}
	if strings.ContainsAny(s, " \t") {
		return errors.New(errors.ErrCodeInvalidGroup, "unexpected space in group name: %s", s)
	}
	return nil
}

// ParseGroupName validates a user-supplied group name, folding the two
// reserved spellings onto their constants.
func ParseGroupName(s string) (GroupName, error) {
	if err := ValidateGroupName(s); err != nil {
		return "", err
	}
	return GroupName(s), nil
}

// GroupConfig is one [[workspace.metadata.crateherd.group]] entry.
type GroupConfig struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Members []string `toml:"members"`
}

// PackageConfig is the per-crate [package.metadata.crateherd] block.
type PackageConfig struct {
	Independent bool `toml:"independent"`
}

// Config is the [workspace.metadata.crateherd] block of the root manifest.
type Config struct {
	Version          string        `toml:"version"`
	Exclude          []string      `toml:"exclude"`
	Groups           []GroupConfig `toml:"group"`
	AllowBranch      string        `toml:"allow_branch"`
	NoIndividualTags bool          `toml:"no_individual_tags"`
}

func validateConfig(cfg *Config) error {
	seen := make(map[string]struct{}, len(cfg.Groups))
	for _, g := range cfg.Groups {
		if err := ValidateGroupName(g.Name); err != nil {
			return err
		}
		if !GroupName(g.Name).IsCustom() {
			return errors.New(errors.ErrCodeInvalidGroup, "group name %q is reserved", g.Name)
		}
		if _, dup := seen[g.Name]; dup {
			return errors.New(errors.ErrCodeInvalidGroup, "group %q is defined twice", g.Name)
		}
		seen[g.Name] = struct{}{}
		for _, pat := range g.Members {
			if !doublestar.ValidatePattern(pat) {
				return errors.New(errors.ErrCodeInvalidPattern,
					"invalid member pattern %q in group %q", pat, g.Name)
			}
		}
	}
	for _, pat := range cfg.Exclude {
		if !doublestar.ValidatePattern(pat) {
			return errors.New(errors.ErrCodeInvalidPattern, "invalid exclude pattern %q", pat)
		}
	}
	return nil
}
