package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/spf13/cobra"

	"github.com/crateherd/crateherd/pkg/graph"
	"github.com/crateherd/crateherd/pkg/workspace"
)

type graphOpts struct {
	all    bool
	output string
}

func newGraphCmd() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Emit the publish-order dependency graph",
		Long: `Graph prints the workspace dependency graph in DOT form, the same
order publish walks. With an --output ending in .svg the graph is
rendered in-process instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			groups, err := workspace.ResolveGroups(ws, opts.all)
			if err != nil {
				return err
			}

			var candidates []graph.Candidate
			for _, gp := range groups.Flatten() {
				if gp.Group.Name == workspace.GroupExcluded {
					continue
				}
				candidates = append(candidates, graph.Candidate{Pkg: gp.Pkg, Version: gp.Pkg.Version})
			}
			g, err := graph.Build(candidates)
			if err != nil {
				return err
			}
			return writeGraph(cmd.Context(), g.Dot(), &opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "include private packages")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to this file; a .svg suffix renders via graphviz")
	return cmd
}

func writeGraph(ctx context.Context, dot string, opts *graphOpts) error {
	if opts.output == "" {
		fmt.Print(dot)
		return nil
	}

	data := []byte(dot)
	if strings.EqualFold(filepath.Ext(opts.output), ".svg") {
		svg, err := renderSVG(ctx, dot)
		if err != nil {
			return err
		}
		data = svg
	}
	return os.WriteFile(opts.output, data, 0o644)
}

// renderSVG renders a DOT graph to SVG in-process.
func renderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
