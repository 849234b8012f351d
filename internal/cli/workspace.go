package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/crateherd/crateherd/pkg/release"
	"github.com/crateherd/crateherd/pkg/vcs"
	"github.com/crateherd/crateherd/pkg/workspace"
)

// openWorkspace locates the workspace root from the current directory
// and loads every member manifest.
func openWorkspace() (*workspace.Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := workspace.FindRoot(cwd)
	if err != nil {
		return nil, err
	}
	return workspace.Load(root)
}

// changeFlags holds the flags shared by every command that partitions
// packages into changed and unchanged.
type changeFlags struct {
	includeMergedTags bool
	force             string
	ignoreChanges     []string
	groups            []string
	since             string // diff from this revision instead of the last tag
}

func (f *changeFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.includeMergedTags, "include-merged-tags", false, "also consider tags reachable through merged branches")
	cmd.Flags().StringVar(&f.force, "force", "", "glob of package names to treat as changed regardless of the diff")
	cmd.Flags().StringSliceVar(&f.ignoreChanges, "ignore-changes", nil, "globs of changed files to ignore during detection")
	cmd.Flags().StringSliceVar(&f.groups, "groups", nil, "restrict detection to these groups")
}

func (f *changeFlags) options() release.ChangeOptions {
	return release.ChangeOptions{
		Force:         f.force,
		IgnoreChanges: f.ignoreChanges,
		Groups:        f.groups,
	}
}

// detectChanged describes the last release tag and partitions the
// grouped packages against the files diffed since then. A released
// HEAD with no force pattern yields no changed packages.
func detectChanged(ctx context.Context, git *vcs.Runner, groups workspace.Groups, f *changeFlags) (vcs.ChangeData, []workspace.GroupedPackage, []workspace.GroupedPackage, error) {
	var data vcs.ChangeData
	var err error
	if f.since != "" {
		data = vcs.ChangeData{Since: f.since, Count: 1}
	} else {
		data, err = git.Describe(ctx, f.includeMergedTags)
		if err != nil {
			return vcs.ChangeData{}, nil, nil, err
		}
	}

	if data.Released() && f.force == "" {
		return data, nil, nil, nil
	}

	var files []string
	if data.Since != "" {
		files, err = git.Diff(ctx, data.Since)
		if err != nil {
			return data, nil, nil, err
		}
	}

	changed, unchanged, err := release.Partition(groups, data.Since, files, f.options())
	if err != nil {
		return data, nil, nil, err
	}
	return data, changed, unchanged, nil
}
