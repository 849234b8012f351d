package cli

import (
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/crateherd/crateherd/pkg/errors"
	"github.com/crateherd/crateherd/pkg/manifest"
	"github.com/crateherd/crateherd/pkg/workspace"
)

type renameOpts struct {
	all    bool
	ignore string
	groups []string
}

func newRenameCmd() *cobra.Command {
	var opts renameOpts

	cmd := &cobra.Command{
		Use:   "rename <name>",
		Short: "Rename packages across every workspace manifest",
		Long: `Rename rewrites package names in every workspace manifest, including
dependency tables that reference them. The %n placeholder expands to
the current package name, so "@myorg/%n" prefixes every crate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			groups, err := workspace.ResolveGroups(ws, opts.all)
			if err != nil {
				return err
			}
			renames, err := renameMap(groups, args[0], &opts)
			if err != nil {
				return err
			}
			if len(renames) == 0 {
				loggerFromContext(cmd.Context()).Info("no packages selected")
				return nil
			}
			return applyRenames(ws, renames)
		},
	}

	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "also rename private packages")
	cmd.Flags().StringVar(&opts.ignore, "ignore", "", "glob of package names to leave untouched")
	cmd.Flags().StringSliceVar(&opts.groups, "groups", nil, "restrict renaming to these groups")
	return cmd
}

func renameMap(groups workspace.Groups, template string, opts *renameOpts) (map[string]string, error) {
	if opts.ignore != "" && !doublestar.ValidatePattern(opts.ignore) {
		return nil, errors.New(errors.ErrCodeInvalidPattern, "invalid ignore pattern %q", opts.ignore)
	}

	renames := make(map[string]string)
	for _, gp := range groups.Flatten() {
		if gp.Group.Name == workspace.GroupExcluded {
			continue
		}
		if len(opts.groups) > 0 && !containsGroup(opts.groups, gp.Group.Name) {
			continue
		}
		if opts.ignore != "" {
			if ok, _ := doublestar.Match(opts.ignore, gp.Pkg.Name); ok {
				continue
			}
		}
		next := strings.ReplaceAll(template, "%n", gp.Pkg.Name)
		if next != gp.Pkg.Name {
			renames[gp.Pkg.Name] = next
		}
	}
	return renames, nil
}

func containsGroup(names []string, name workspace.GroupName) bool {
	for _, n := range names {
		if workspace.GroupName(n) == name {
			return true
		}
	}
	return false
}

// applyRenames rewrites every manifest in the workspace, the root one
// included, since any of them may reference a renamed package.
func applyRenames(ws *workspace.Workspace, renames map[string]string) error {
	for _, pkg := range ws.Packages {
		if err := renameManifest(pkg.ManifestPath, pkg.Name, renames); err != nil {
			return err
		}
	}
	for _, pkg := range ws.Packages {
		if pkg.ManifestPath == ws.RootManifestPath {
			return nil
		}
	}
	return renameManifest(ws.RootManifestPath, manifest.WorkspacePackage, renames)
}

func renameManifest(path, pkgName string, renames map[string]string) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBadManifest, err, "reading %s", path)
	}
	out, err := manifest.RenamePackages(string(doc), pkgName, renames)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(out+"\n"), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeBadManifest, err, "writing %s", path)
	}
	return nil
}
