package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/crateherd/crateherd/pkg/release"
	"github.com/crateherd/crateherd/pkg/workspace"
)

// Building the tree exercises every flag registration; pflag panics on
// a duplicate flag name, so construction alone is a meaningful check.
func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	want := []string{"list", "changed", "version", "publish", "rename", "graph"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %s not registered", name)
		}
	}
}

func TestCommandHelp(t *testing.T) {
	for _, name := range []string{"list", "changed", "version", "publish", "rename", "graph"} {
		t.Run(name, func(t *testing.T) {
			root := newRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs([]string{name, "--help"})
			if err := root.ExecuteContext(context.Background()); err != nil {
				t.Fatalf("%s --help: %v", name, err)
			}
			if !strings.Contains(out.String(), "Usage:") {
				t.Errorf("help output missing usage:\n%s", out.String())
			}
		})
	}
}

func TestChangedCommandFlags(t *testing.T) {
	root := newRootCmd()
	var changed *cobra.Command
	for _, cmd := range root.Commands() {
		if cmd.Name() == "changed" {
			changed = cmd
		}
	}
	if changed == nil {
		t.Fatal("changed command not registered")
	}
	// The detection filter and the display toggle are distinct flags.
	if changed.Flags().Lookup("groups") == nil {
		t.Error("--groups detection filter missing")
	}
	if changed.Flags().Lookup("by-group") == nil {
		t.Error("--by-group display toggle missing")
	}
}

func TestPlanOptionsBumpArgument(t *testing.T) {
	var flags versionFlags
	opts, err := planOptions([]string{"minor"}, &flags)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Bump == nil || *opts.Bump != release.BumpMinor {
		t.Errorf("bump = %v", opts.Bump)
	}
}

func TestPlanOptionsCustomVersion(t *testing.T) {
	var flags versionFlags
	opts, err := planOptions([]string{"custom", "2.0.0-rc.1"}, &flags)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Bump == nil || *opts.Bump != release.BumpCustom {
		t.Errorf("bump = %v", opts.Bump)
	}
	if opts.Custom == nil || opts.Custom.String() != "2.0.0-rc.1" {
		t.Errorf("custom = %v", opts.Custom)
	}
}

func TestPlanOptionsRejectsUnknownBump(t *testing.T) {
	var flags versionFlags
	if _, err := planOptions([]string{"gigantic"}, &flags); err == nil {
		t.Fatal("expected an error")
	}
}

func renameGroups() workspace.Groups {
	mk := func(name string, private bool) *workspace.Package {
		return &workspace.Package{Name: name, Version: semver.MustParse("1.0.0"), Private: private}
	}
	return workspace.Groups{
		{Name: workspace.GroupDefault, Packages: []*workspace.Package{mk("core", false), mk("cli", false)}},
		{Name: workspace.GroupExcluded, Packages: []*workspace.Package{mk("hidden", false)}},
	}
}

func TestRenameMapTemplate(t *testing.T) {
	renames, err := renameMap(renameGroups(), "acme-%n", &renameOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if renames["core"] != "acme-core" || renames["cli"] != "acme-cli" {
		t.Errorf("renames = %v", renames)
	}
	if _, ok := renames["hidden"]; ok {
		t.Error("excluded package should not be renamed")
	}
}

func TestRenameMapIgnore(t *testing.T) {
	renames, err := renameMap(renameGroups(), "acme-%n", &renameOpts{ignore: "c*i"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := renames["cli"]; ok {
		t.Errorf("renames = %v", renames)
	}
	if renames["core"] != "acme-core" {
		t.Errorf("renames = %v", renames)
	}
}

func TestRenameMapNoop(t *testing.T) {
	renames, err := renameMap(renameGroups(), "%n", &renameOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(renames) != 0 {
		t.Errorf("renames = %v", renames)
	}
}
