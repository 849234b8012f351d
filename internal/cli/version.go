package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/crateherd/crateherd/pkg/cargo"
	"github.com/crateherd/crateherd/pkg/release"
	"github.com/crateherd/crateherd/pkg/vcs"
	"github.com/crateherd/crateherd/pkg/workspace"
)

// versionFlags collects everything the version flow needs. The publish
// command embeds the same flow before uploading.
type versionFlags struct {
	preID string
	exact bool
	yes   bool
	all   bool

	detect changeFlags
	git    vcs.Options
}

func (f *versionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.preID, "pre-id", "", "prerelease identifier for pre* bumps (e.g. rc)")
	cmd.Flags().BoolVar(&f.exact, "exact", false, "pin dependency requirements to the exact new version")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().BoolVarP(&f.all, "all", "a", false, "version every package, not only the changed ones")
	f.detect.register(cmd)
	registerGitFlags(cmd, &f.git)
}

func registerGitFlags(cmd *cobra.Command, opts *vcs.Options) {
	*opts = vcs.DefaultOptions()
	cmd.Flags().BoolVar(&opts.NoGitCommit, "no-git-commit", false, "do not commit the version changes")
	cmd.Flags().StringVar(&opts.AllowBranch, "allow-branch", "", "glob of branches releases may run on (overrides config)")
	cmd.Flags().BoolVar(&opts.Amend, "amend", false, "amend the previous commit instead of creating one")
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "custom commit message (%v expands to the shared version)")
	cmd.Flags().BoolVar(&opts.NoGitTag, "no-git-tag", false, "do not tag the release commit")
	cmd.Flags().BoolVar(&opts.TagExisting, "tag-existing", false, "tag the current commit even when not committing")
	cmd.Flags().BoolVar(&opts.NoIndividualTags, "no-individual-tags", false, "skip per-package tags")
	cmd.Flags().BoolVar(&opts.NoGlobalTag, "no-global-tag", false, "skip the shared version tag")
	cmd.Flags().BoolVar(&opts.TagPrivate, "tag-private", false, "also tag private packages")
	cmd.Flags().StringVar(&opts.TagPrefix, "tag-prefix", opts.TagPrefix, "prefix for the shared version tag")
	cmd.Flags().StringVar(&opts.IndividualTagPrefix, "individual-tag-prefix", opts.IndividualTagPrefix, "prefix for per-package tags (%n expands to the name)")
	cmd.Flags().StringSliceVar(&opts.TagMsg, "tag-msg", nil, "annotation lines for the shared tag (%{...} scopes per-package expansion)")
	cmd.Flags().StringVar(&opts.IndividualTagMsg, "individual-tag-msg", "", "annotation for per-package tags (%n, %v)")
	cmd.Flags().BoolVar(&opts.NoGitPush, "no-git-push", false, "do not push the release commit and tags")
	cmd.Flags().StringVar(&opts.GitRemote, "git-remote", opts.GitRemote, "remote to push to")
}

// versionResult carries the state the publish command continues from.
type versionResult struct {
	ws     *workspace.Workspace
	groups workspace.Groups
	git    *vcs.Runner
	branch string
	plan   *release.Plan
	tagged []vcs.TaggedVersion
}

func newVersionCmd() *cobra.Command {
	var flags versionFlags

	cmd := &cobra.Command{
		Use:   "version [bump] [version]",
		Short: "Plan new versions, rewrite manifests, then commit, tag, and push",
		Long: `Version detects which packages changed since the last release tag,
plans a new version per group (or per independent package), rewrites
every affected manifest without disturbing its formatting, and records
the release in git.

The optional bump argument skips the interactive menu: major, minor,
patch, premajor, preminor, prepatch, prerelease, or custom followed by
an explicit version.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := planOptions(args, &flags)
			if err != nil {
				return err
			}
			res, err := runVersion(cmd.Context(), &flags, opts, false)
			if err != nil || res == nil || res.plan == nil {
				return err
			}
			return finishRelease(cmd.Context(), res, flags.git)
		},
	}

	flags.register(cmd)
	return cmd
}

// planOptions translates the positional bump arguments into planner
// options.
func planOptions(args []string, flags *versionFlags) (release.Options, error) {
	opts := release.Options{
		PreID: flags.preID,
		Exact: flags.exact,
		Yes:   flags.yes,
	}
	if len(args) == 0 {
		return opts, nil
	}
	bump, err := release.ParseBump(args[0])
	if err != nil {
		return opts, err
	}
	opts.Bump = &bump
	if bump == release.BumpCustom && len(args) > 1 {
		custom, err := semver.NewVersion(args[1])
		if err != nil {
			return opts, fmt.Errorf("invalid custom version %q: %w", args[1], err)
		}
		opts.Custom = custom
	}
	return opts, nil
}

// runVersion executes the shared version flow up to the release
// commit. With deferTags set, tagging and pushing are left to the
// caller so per-package tags can land as crates publish.
func runVersion(ctx context.Context, flags *versionFlags, opts release.Options, deferTags bool) (*versionResult, error) {
	logger := loggerFromContext(ctx)

	ws, err := openWorkspace()
	if err != nil {
		return nil, err
	}
	groups, err := workspace.ResolveGroups(ws, true)
	if err != nil {
		return nil, err
	}

	git := vcs.New(ws.Root, logger)
	branch, err := git.Validate(ctx, flags.git, ws.Config.AllowBranch)
	if err != nil {
		return nil, err
	}

	data, changed, _, err := detectChanged(ctx, git, groups, &flags.detect)
	if err != nil {
		return nil, err
	}
	res := &versionResult{ws: ws, groups: groups, git: git, branch: branch}
	if flags.all {
		changed = nil
		for _, gp := range groups.Flatten() {
			if gp.Group.Name != workspace.GroupExcluded {
				changed = append(changed, gp)
			}
		}
	} else if data.Released() && flags.detect.force == "" {
		logger.Info("current HEAD is already released, skipping versioning", "tag", data.Since)
		return res, nil
	}
	if len(changed) == 0 {
		logger.Info("no changes detected", "since", data.Since)
		return res, nil
	}

	planner := release.NewPlanner(huhPrompter{}, os.Stdout, logger)
	plan, err := planner.Plan(groups, release.ChangedNames(changed), opts)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return res, nil
	}

	if err := planner.Apply(ctx, ws, plan, cargo.New(ws.Root, logger)); err != nil {
		return nil, err
	}
	logger.Debug("applied new versions", "packages", strings.Join(plan.SortedNames(), ", "))

	res.plan = plan
	res.tagged = taggedVersions(ws, plan)

	if !flags.git.NoGitCommit {
		if err := git.Commit(ctx, flags.git, plan.Shared, res.tagged); err != nil {
			return nil, err
		}
	}
	if deferTags {
		return res, nil
	}

	if flags.git.ShouldTag() {
		if err := applyTags(ctx, res, flags.git); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// finishRelease pushes the release commit and its tags.
func finishRelease(ctx context.Context, res *versionResult, opts vcs.Options) error {
	if opts.NoGitPush {
		return nil
	}
	return res.git.Push(ctx, opts, res.branch)
}

func applyTags(ctx context.Context, res *versionResult, opts vcs.Options) error {
	if res.plan.Shared != nil && !opts.NoGlobalTag {
		if err := res.git.GlobalTag(ctx, opts, res.plan.Shared, res.tagged); err != nil {
			return err
		}
	}
	for _, v := range res.tagged {
		if err := res.git.IndividualTag(ctx, opts, res.ws.Config.NoIndividualTags, v); err != nil {
			return err
		}
	}
	return nil
}

func taggedVersions(ws *workspace.Workspace, plan *release.Plan) []vcs.TaggedVersion {
	out := make([]vcs.TaggedVersion, 0, len(plan.Changes))
	for _, c := range plan.Changes {
		tagged := vcs.TaggedVersion{Name: c.Name, Version: c.To, Private: c.Private}
		if pkg := ws.Lookup(c.Name); pkg != nil {
			tagged.Private = pkg.Private
		}
		out = append(out, tagged)
	}
	return out
}
