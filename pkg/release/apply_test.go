package release

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/crateherd/crateherd/pkg/workspace"
)

type recordingUpdater struct {
	calls []string
}

func (u *recordingUpdater) Update(_ context.Context, pkg string) error {
	u.calls = append(u.calls, pkg)
	return nil
}

func writeManifest(t *testing.T, root, rel, doc string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readManifest(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestApplyRewritesManifests(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "Cargo.toml", `[workspace]
members = ["crates/*"]

[workspace.package]
version = "0.1.0"

[workspace.dependencies]
core = { path = "crates/core", version = "0.1.0" }
`)
	writeManifest(t, root, "crates/core/Cargo.toml", `[package]
name = "core"
version.workspace = true
`)
	writeManifest(t, root, "crates/cli/Cargo.toml", `[package]
name = "cli"
version = "0.1.0"

[dependencies]
core = { workspace = true }
`)
	writeManifest(t, root, "crates/extra/Cargo.toml", `[package]
name = "extra"
version = "3.0.0"
`)

	ws, err := workspace.Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	next := semver.MustParse("0.2.0")
	plan := &Plan{
		Changes: []Change{
			{Name: "core", From: semver.MustParse("0.1.0"), To: next},
			{Name: "cli", From: semver.MustParse("0.1.0"), To: next},
		},
		Versions: map[string]*semver.Version{"core": next, "cli": next},
	}

	up := &recordingUpdater{}
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	if err := p.Apply(context.Background(), ws, plan, up); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	cli := readManifest(t, root, "crates/cli/Cargo.toml")
	if !strings.Contains(cli, `version = "0.2.0"`) {
		t.Errorf("cli version not bumped:\n%s", cli)
	}

	// The root carries both the inherited package version and the
	// shared dependency requirement.
	rootDoc := readManifest(t, root, "Cargo.toml")
	if !strings.Contains(rootDoc, "[workspace.package]\nversion = \"0.2.0\"") {
		t.Errorf("workspace.package version not bumped:\n%s", rootDoc)
	}
	if !strings.Contains(rootDoc, `core = { path = "crates/core", version = "0.2.0" }`) {
		t.Errorf("workspace dependency requirement not bumped:\n%s", rootDoc)
	}

	// core inherits its version, so its own manifest stays as written.
	coreDoc := readManifest(t, root, "crates/core/Cargo.toml")
	if !strings.Contains(coreDoc, "version.workspace = true") {
		t.Errorf("core manifest changed unexpectedly:\n%s", coreDoc)
	}

	// A package the plan never touches is left alone entirely.
	extra := readManifest(t, root, "crates/extra/Cargo.toml")
	if !strings.Contains(extra, `version = "3.0.0"`) {
		t.Errorf("extra manifest changed unexpectedly:\n%s", extra)
	}

	if len(up.calls) != 2 || up.calls[0] != "core" || up.calls[1] != "cli" {
		t.Errorf("updater calls = %v", up.calls)
	}
}

func TestApplyExactRequirement(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "Cargo.toml", `[workspace]
members = ["crates/*"]
`)
	writeManifest(t, root, "crates/core/Cargo.toml", `[package]
name = "core"
version = "0.1.0"
`)
	writeManifest(t, root, "crates/cli/Cargo.toml", `[package]
name = "cli"
version = "0.1.0"

[dependencies]
core = { path = "../core", version = "0.1.0" }
`)

	ws, err := workspace.Load(root)
	if err != nil {
		t.Fatal(err)
	}

	next := semver.MustParse("0.2.0")
	plan := &Plan{
		Changes:  []Change{{Name: "core", From: semver.MustParse("0.1.0"), To: next}},
		Versions: map[string]*semver.Version{"core": next, "cli": next},
		Exact:    true,
	}

	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	if err := p.Apply(context.Background(), ws, plan, nil); err != nil {
		t.Fatal(err)
	}

	cli := readManifest(t, root, "crates/cli/Cargo.toml")
	if !strings.Contains(cli, `version = "=0.2.0"`) {
		t.Errorf("dependency requirement not pinned:\n%s", cli)
	}
}
