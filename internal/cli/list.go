package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crateherd/crateherd/pkg/workspace"
)

// listOpts holds the command-line flags shared by list and changed
// output.
type listOpts struct {
	long    bool // show version and path columns
	all     bool // include private packages
	json    bool // machine-readable output
	byGroup bool // print group headers
}

type listedPackage struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Path        string `json:"path"`
	Private     bool   `json:"private"`
	Independent bool   `json:"independent"`
	Group       string `json:"group"`
}

func newListCmd() *cobra.Command {
	var opts listOpts

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List workspace packages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			groups, err := workspace.ResolveGroups(ws, opts.all)
			if err != nil {
				return err
			}
			return printPackages(groups.Flatten(), &opts)
		},
	}

	registerListFlags(cmd, &opts)
	return cmd
}

func registerListFlags(cmd *cobra.Command, opts *listOpts) {
	cmd.Flags().BoolVarP(&opts.long, "long", "l", false, "show version and path")
	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "include private packages")
	cmd.Flags().BoolVar(&opts.json, "json", false, "emit JSON")
	cmd.Flags().BoolVar(&opts.byGroup, "by-group", false, "group output by release group")
}

func printPackages(pkgs []workspace.GroupedPackage, opts *listOpts) error {
	if opts.json {
		out := make([]listedPackage, 0, len(pkgs))
		for _, gp := range pkgs {
			out = append(out, listedPackage{
				Name:        gp.Pkg.Name,
				Version:     gp.Pkg.Version.String(),
				Path:        gp.Pkg.Path,
				Private:     gp.Pkg.Private,
				Independent: gp.Pkg.Independent,
				Group:       string(gp.Group.Name),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	nameWidth, versionWidth := 0, 0
	for _, gp := range pkgs {
		if n := len(gp.Pkg.Name); n > nameWidth {
			nameWidth = n
		}
		if n := len(gp.Pkg.Version.String()) + 1; n > versionWidth {
			versionWidth = n
		}
	}

	var lastGroup workspace.GroupName = "\x00"
	for _, gp := range pkgs {
		if opts.byGroup && gp.Group.Name != lastGroup {
			fmt.Println(StyleTitle.Render(fmt.Sprintf("[%s]", gp.Group.Name)))
			lastGroup = gp.Group.Name
		}
		line := gp.Pkg.Name
		if opts.long {
			line = fmt.Sprintf("%-*s %s %s",
				nameWidth, gp.Pkg.Name,
				StyleNumber.Render(fmt.Sprintf("%-*s", versionWidth, "v"+gp.Pkg.Version.String())),
				StyleDim.Render(pathOrDot(gp.Pkg.Path)))
		}
		if gp.Pkg.Private {
			line += " " + StyleWarning.Render("(private)")
		}
		fmt.Println(line)
	}
	return nil
}

func pathOrDot(path string) string {
	if path == "" {
		return "."
	}
	return path
}
