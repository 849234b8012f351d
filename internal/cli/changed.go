package cli

import (
	"github.com/spf13/cobra"

	"github.com/crateherd/crateherd/pkg/vcs"
	"github.com/crateherd/crateherd/pkg/workspace"
)

func newChangedCmd() *cobra.Command {
	var opts listOpts
	var detect changeFlags

	cmd := &cobra.Command{
		Use:   "changed",
		Short: "List packages changed since the last release tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			groups, err := workspace.ResolveGroups(ws, opts.all)
			if err != nil {
				return err
			}

			git := vcs.New(ws.Root, logger)
			data, changed, _, err := detectChanged(ctx, git, groups, &detect)
			if err != nil {
				return err
			}
			if data.Released() && detect.force == "" {
				logger.Info("current HEAD is already released", "tag", data.Since)
				return nil
			}
			if len(changed) == 0 {
				logger.Info("no changes detected", "since", data.Since)
				return nil
			}
			return printPackages(changed, &opts)
		},
	}

	registerListFlags(cmd, &opts)
	detect.register(cmd)
	cmd.Flags().StringVar(&detect.since, "since", "", "diff from this revision instead of the last release tag")
	return cmd
}
