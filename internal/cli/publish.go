package cli

import (
	"context"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/crateherd/crateherd/pkg/cache"
	"github.com/crateherd/crateherd/pkg/cargo"
	"github.com/crateherd/crateherd/pkg/graph"
	"github.com/crateherd/crateherd/pkg/registry"
	"github.com/crateherd/crateherd/pkg/release"
	"github.com/crateherd/crateherd/pkg/vcs"
	"github.com/crateherd/crateherd/pkg/workspace"
)

type publishFlags struct {
	version versionFlags

	fromGit    bool
	noVerify   bool
	allowDirty bool
	registry   string
	token      string
}

func newPublishCmd() *cobra.Command {
	var flags publishFlags

	cmd := &cobra.Command{
		Use:   "publish [bump] [version]",
		Short: "Version changed packages and upload them in dependency order",
		Long: `Publish runs the version flow, then uploads every planned package in
topological order, waiting for each crate to become visible in its
registry index before publishing its dependents. Versions the registry
already has are skipped, so a partially failed run can simply be
re-run.

With --from-git the version flow is skipped and the packages are
published exactly as committed.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := planOptions(args, &flags.version)
			if err != nil {
				return err
			}
			return runPublish(cmd.Context(), &flags, opts)
		},
	}

	flags.version.register(cmd)
	cmd.Flags().BoolVar(&flags.fromGit, "from-git", false, "publish the committed versions without bumping")
	cmd.Flags().BoolVar(&flags.noVerify, "no-verify", false, "pass --no-verify to cargo publish")
	cmd.Flags().BoolVar(&flags.allowDirty, "allow-dirty", false, "pass --allow-dirty to cargo publish")
	cmd.Flags().StringVar(&flags.registry, "registry", "", "publish to this registry")
	cmd.Flags().StringVar(&flags.token, "token", "", "registry token to authenticate with")
	return cmd
}

func runPublish(ctx context.Context, flags *publishFlags, opts release.Options) error {
	logger := loggerFromContext(ctx)

	var (
		res        *versionResult
		candidates []graph.Candidate
		err        error
	)
	if flags.fromGit {
		res, candidates, err = fromGitCandidates(ctx, flags)
	} else {
		res, err = runVersion(ctx, &flags.version, opts, true)
		if err == nil && res != nil && res.plan != nil {
			candidates = plannedCandidates(res.ws, res.plan)
		}
	}
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		logger.Info("nothing to publish")
		return nil
	}

	g, err := graph.Build(candidates)
	if err != nil {
		return err
	}

	coord := &release.Coordinator{
		Cargo:      cargo.New(res.ws.Root, logger),
		Index:      indexFactory(logger),
		Logger:     logger,
		NoVerify:   flags.noVerify,
		AllowDirty: flags.allowDirty,
		Token:      flags.token,
		Registry:   flags.registry,
	}
	if !flags.fromGit && flags.version.git.ShouldTag() {
		coord.Git = res.git
		coord.GitOpts = flags.version.git
		coord.NoIndividualTagsConfig = res.ws.Config.NoIndividualTags
	}

	prog := newProgress(logger)
	if err := coord.Publish(ctx, g); err != nil {
		return err
	}
	prog.done("Published crates")

	if flags.fromGit {
		return nil
	}
	if flags.version.git.ShouldTag() && res.plan.Shared != nil && !flags.version.git.NoGlobalTag {
		if err := res.git.GlobalTag(ctx, flags.version.git, res.plan.Shared, res.tagged); err != nil {
			return err
		}
	}
	return finishRelease(ctx, res, flags.version.git)
}

// fromGitCandidates publishes what is already committed: every public
// package at its current manifest version.
func fromGitCandidates(ctx context.Context, flags *publishFlags) (*versionResult, []graph.Candidate, error) {
	logger := loggerFromContext(ctx)

	ws, err := openWorkspace()
	if err != nil {
		return nil, nil, err
	}
	groups, err := workspace.ResolveGroups(ws, false)
	if err != nil {
		return nil, nil, err
	}

	git := vcs.New(ws.Root, logger)
	branch, err := git.Validate(ctx, flags.version.git, ws.Config.AllowBranch)
	if err != nil {
		return nil, nil, err
	}

	var candidates []graph.Candidate
	for _, gp := range groups.Flatten() {
		if gp.Group.Name == workspace.GroupExcluded {
			continue
		}
		candidates = append(candidates, graph.Candidate{Pkg: gp.Pkg, Version: gp.Pkg.Version})
	}
	return &versionResult{ws: ws, groups: groups, git: git, branch: branch}, candidates, nil
}

// plannedCandidates pairs every planned package with its new version.
func plannedCandidates(ws *workspace.Workspace, plan *release.Plan) []graph.Candidate {
	var candidates []graph.Candidate
	for _, c := range plan.Changes {
		pkg := ws.Lookup(c.Name)
		if pkg == nil {
			continue
		}
		candidates = append(candidates, graph.Candidate{Pkg: pkg, Version: c.To})
	}
	return candidates
}

// indexFactory builds registry clients backed by the shared on-disk
// response cache. A cache that cannot be created degrades to direct
// fetches.
func indexFactory(logger *charmlog.Logger) func(indexURL string) release.Index {
	store := openCache(logger)
	return func(indexURL string) release.Index {
		return registry.New(indexURL, store, logger)
	}
}

func openCache(logger *charmlog.Logger) cache.Cache {
	dir, err := os.UserCacheDir()
	if err != nil {
		logger.Debug("no user cache dir, caching disabled", "err", err)
		return cache.NewNullCache()
	}
	store, err := cache.NewFileCache(filepath.Join(dir, "crateherd"))
	if err != nil {
		logger.Debug("cache unavailable", "err", err)
		return cache.NewNullCache()
	}
	return store
}
