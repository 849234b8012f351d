package release

import (
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/crateherd/crateherd/pkg/manifest"
	"github.com/crateherd/crateherd/pkg/workspace"
)

func pkg(name, version string, deps ...manifest.Dependency) *workspace.Package {
	return &workspace.Package{
		Name:    name,
		Version: semver.MustParse(version),
		Deps:    deps,
	}
}

func reqDep(name, req string) manifest.Dependency {
	return manifest.Dependency{Name: name, Req: req}
}

func defaultGroups(pkgs ...*workspace.Package) workspace.Groups {
	return workspace.Groups{{Name: workspace.GroupDefault, Packages: pkgs}}
}

func bump(b Bump) *Bump { return &b }

func TestPlanCohortBump(t *testing.T) {
	groups := defaultGroups(
		pkg("alpha", "0.1.0"),
		pkg("beta", "0.3.0"),
	)
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"alpha": true, "beta": true},
		Options{Bump: bump(BumpPatch), Yes: true})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if plan == nil {
		t.Fatal("expected a plan")
	}

	// The cohort shares one version derived from the max current one.
	want := "0.3.1"
	for _, name := range []string{"alpha", "beta"} {
		if got := plan.Versions[name]; got == nil || got.String() != want {
			t.Errorf("%s = %v, want %s", name, got, want)
		}
	}
	if plan.Shared == nil || plan.Shared.String() != want {
		t.Errorf("shared = %v, want %s", plan.Shared, want)
	}
}

func TestPlanSkipsCohortMemberAlreadyAtTarget(t *testing.T) {
	groups := defaultGroups(
		pkg("alpha", "0.3.1"),
		pkg("beta", "0.3.0"),
	)
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"alpha": true, "beta": true},
		Options{Bump: bump(BumpPatch), Yes: true})
	if err != nil {
		t.Fatal(err)
	}
	// Max current version is 0.3.1, patch gives 0.3.2, both move.
	if len(plan.Changes) != 2 {
		t.Fatalf("changes = %+v", plan.Changes)
	}

	// With a fixed group version matching alpha, only beta moves.
	groups = workspace.Groups{{
		Name:     workspace.GroupDefault,
		Version:  semver.MustParse("0.3.1"),
		Packages: []*workspace.Package{pkg("alpha", "0.3.1"), pkg("beta", "0.3.0")},
	}}
	plan, err = p.Plan(groups, map[string]bool{"alpha": true, "beta": true}, Options{Yes: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Changes) != 1 || plan.Changes[0].Name != "beta" {
		t.Fatalf("changes = %+v", plan.Changes)
	}
}

func TestPlanGroupFixedVersionWithoutPrompt(t *testing.T) {
	groups := workspace.Groups{{
		Name:     workspace.GroupName("tools"),
		Version:  semver.MustParse("2.0.0"),
		Packages: []*workspace.Package{pkg("tool", "1.0.0")},
	}}
	// No scripted answers: any prompt would fail the plan.
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"tool": true}, Options{Yes: true})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if got := plan.Versions["tool"]; got == nil || got.String() != "2.0.0" {
		t.Errorf("tool = %v, want 2.0.0", got)
	}
}

func TestPlanIndependentPromptsPerPackage(t *testing.T) {
	solo := pkg("solo", "1.0.0")
	solo.Independent = true
	other := pkg("other", "0.5.0")
	other.Independent = true
	groups := defaultGroups(solo, other)

	// Menu index 1 is minor, 2 is major.
	p := NewPlanner(&ScriptedPrompter{Selections: []int{1, 2}}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"solo": true, "other": true}, Options{Yes: true})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if got := plan.Versions["solo"]; got.String() != "1.1.0" {
		t.Errorf("solo = %v, want 1.1.0", got)
	}
	if got := plan.Versions["other"]; got.String() != "1.0.0" {
		t.Errorf("other = %v, want 1.0.0", got)
	}
	if plan.Shared != nil {
		t.Errorf("shared = %v, want nil for independent-only plan", plan.Shared)
	}
}

func TestPlanPropagationChain(t *testing.T) {
	// app depends on lib depends on core; only core changed, but the
	// major bump breaks both caret requirements, one hop at a time.
	groups := defaultGroups(
		pkg("core", "1.0.0"),
		pkg("lib", "1.0.0", reqDep("core", "1.0")),
		pkg("app", "1.0.0", reqDep("lib", "1.0")),
	)
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"core": true},
		Options{Bump: bump(BumpMajor), Yes: true})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	for _, name := range []string{"core", "lib", "app"} {
		if got := plan.Versions[name]; got == nil || got.String() != "2.0.0" {
			t.Errorf("%s = %v, want 2.0.0", name, got)
		}
	}
}

func TestPlanPropagationStopsWhenReqStillMatches(t *testing.T) {
	groups := defaultGroups(
		pkg("core", "1.0.0"),
		pkg("lib", "1.0.0", reqDep("core", "1.0")),
	)
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"core": true},
		Options{Bump: bump(BumpPatch), Yes: true})
	if err != nil {
		t.Fatal(err)
	}
	// ^1.0 still matches 1.0.1, so lib stays put.
	if _, ok := plan.Versions["lib"]; ok {
		t.Errorf("lib should not be replanned: %+v", plan.Changes)
	}
}

func TestPlanPropagationDiamondTerminates(t *testing.T) {
	groups := defaultGroups(
		pkg("base", "1.0.0"),
		pkg("left", "1.0.0", reqDep("base", "1.0")),
		pkg("right", "1.0.0", reqDep("base", "1.0")),
		pkg("top", "1.0.0", reqDep("left", "1.0"), reqDep("right", "1.0")),
	)
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"base": true},
		Options{Bump: bump(BumpMajor), Yes: true})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if len(plan.Changes) != 4 {
		t.Errorf("changes = %+v, want all four packages", plan.Changes)
	}
	// top must appear exactly once even though two edges pull it in.
	seen := 0
	for _, c := range plan.Changes {
		if c.Name == "top" {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("top planned %d times", seen)
	}
}

func TestPlanUnconstrainedDependencyPulled(t *testing.T) {
	groups := defaultGroups(
		pkg("core", "1.0.0"),
		pkg("cli", "1.0.0", reqDep("core", "*")),
	)
	p := NewPlanner(&ScriptedPrompter{Selections: []int{1}, Confirms: []bool{true}}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"core": true},
		Options{Bump: bump(BumpPatch), Yes: true})
	if err != nil {
		t.Fatal(err)
	}
	// "*" always matches, but unconstrained edges still pull.
	if _, ok := plan.Versions["cli"]; !ok {
		t.Errorf("cli should be replanned: %+v", plan.Changes)
	}
	if !plan.AutoInject {
		t.Error("auto-inject should be on after scripted Auto-version + confirm")
	}
}

func TestPlanDeclinedReturnsNil(t *testing.T) {
	groups := defaultGroups(pkg("core", "1.0.0"))
	p := NewPlanner(&ScriptedPrompter{Confirms: []bool{false}}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"core": true}, Options{Bump: bump(BumpPatch)})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if plan != nil {
		t.Fatalf("declined plan should be nil, got %+v", plan)
	}
}

func TestPlanNoChanges(t *testing.T) {
	groups := defaultGroups(pkg("core", "1.0.0"))
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{}, Options{Bump: bump(BumpPatch), Yes: true})
	if err != nil {
		t.Fatal(err)
	}
	if plan != nil {
		t.Fatalf("plan = %+v, want nil", plan)
	}
}

func TestPlanCustomVersion(t *testing.T) {
	groups := defaultGroups(pkg("core", "1.0.0"))
	custom := semver.MustParse("9.9.9")
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"core": true},
		Options{Bump: bump(BumpCustom), Custom: custom, Yes: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := plan.Versions["core"]; !got.Equal(custom) {
		t.Errorf("core = %v, want 9.9.9", got)
	}
}

func TestPlanPrereleaseWithPreID(t *testing.T) {
	groups := defaultGroups(pkg("core", "1.0.0"))
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"core": true},
		Options{Bump: bump(BumpPrerelease), PreID: "rc", Yes: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := plan.Versions["core"]; got.String() != "1.0.1-rc.0" {
		t.Errorf("core = %v, want 1.0.1-rc.0", got)
	}
}

func TestPlanSortedNames(t *testing.T) {
	groups := defaultGroups(
		pkg("zeta", "0.1.0"),
		pkg("alpha", "0.1.0"),
	)
	p := NewPlanner(&ScriptedPrompter{}, nil, nil)
	plan, err := p.Plan(groups, map[string]bool{"zeta": true, "alpha": true},
		Options{Bump: bump(BumpPatch), Yes: true})
	if err != nil {
		t.Fatal(err)
	}
	names := plan.SortedNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("names = %v", names)
	}
}

func TestPlanListingWrittenToOut(t *testing.T) {
	groups := defaultGroups(pkg("core", "1.0.0"))
	var out strings.Builder
	p := NewPlanner(&ScriptedPrompter{}, &out, nil)
	if _, err := p.Plan(groups, map[string]bool{"core": true},
		Options{Bump: bump(BumpPatch), Yes: true}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "core: 1.0.0 => 1.0.1") {
		t.Errorf("listing missing change line:\n%s", out.String())
	}
}
