package graph

import (
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/crateherd/crateherd/pkg/errors"
	"github.com/crateherd/crateherd/pkg/manifest"
	"github.com/crateherd/crateherd/pkg/workspace"
)

func candidate(name string, deps ...manifest.Dependency) Candidate {
	return Candidate{
		Pkg: &workspace.Package{
			Name:         name,
			ManifestPath: "/ws/" + name + "/Cargo.toml",
			Deps:         deps,
		},
		Version: semver.MustParse("1.0.0"),
	}
}

func dep(name string, kind manifest.DepKind) manifest.Dependency {
	return manifest.Dependency{Name: name, Kind: kind}
}

func names(t *testing.T, g *Graph) []string {
	t.Helper()
	var out []string
	for _, path := range g.Order() {
		c, ok := g.Lookup(path)
		if !ok {
			t.Fatalf("order contains unknown path %s", path)
		}
		out = append(out, c.Pkg.Name)
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestBuildChain(t *testing.T) {
	g, err := Build([]Candidate{
		candidate("app", dep("lib", manifest.DepNormal)),
		candidate("lib", dep("core", manifest.DepNormal)),
		candidate("core"),
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	got := names(t, g)
	want := []string{"core", "lib", "app"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestBuildDiamond(t *testing.T) {
	g, err := Build([]Candidate{
		candidate("top", dep("left", manifest.DepNormal), dep("right", manifest.DepNormal)),
		candidate("left", dep("base", manifest.DepNormal)),
		candidate("right", dep("base", manifest.DepBuild)),
		candidate("base"),
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	got := names(t, g)
	if len(got) != 4 {
		t.Fatalf("order = %v, want 4 entries", got)
	}
	for _, pair := range [][2]string{{"base", "left"}, {"base", "right"}, {"left", "top"}, {"right", "top"}} {
		if indexOf(got, pair[0]) > indexOf(got, pair[1]) {
			t.Errorf("%s should come before %s in %v", pair[0], pair[1], got)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	cands := []Candidate{
		candidate("top", dep("left", manifest.DepNormal), dep("right", manifest.DepNormal)),
		candidate("left", dep("base", manifest.DepNormal)),
		candidate("right", dep("base", manifest.DepNormal)),
		candidate("base"),
	}
	first, err := Build(cands)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := Build(cands)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Join(again.Order(), "|") != strings.Join(first.Order(), "|") {
			t.Fatalf("order not deterministic: %v vs %v", again.Order(), first.Order())
		}
	}
}

func TestBuildIgnoresDevAndOutsideEdges(t *testing.T) {
	g, err := Build([]Candidate{
		candidate("lib", dep("testkit", manifest.DepDev), dep("serde", manifest.DepNormal)),
		candidate("testkit", dep("lib", manifest.DepNormal)),
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	got := names(t, g)
	want := []string{"lib", "testkit"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestBuildRenamedDependencyEdge(t *testing.T) {
	g, err := Build([]Candidate{
		candidate("app", manifest.Dependency{Name: "core2", Package: "core", Kind: manifest.DepNormal}),
		candidate("core"),
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	got := names(t, g)
	want := []string{"core", "app"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestBuildCycle(t *testing.T) {
	_, err := Build([]Candidate{
		candidate("a", dep("b", manifest.DepNormal)),
		candidate("b", dep("a", manifest.DepNormal)),
	})
	if errors.GetCode(err) != errors.ErrCodeGraphCycle {
		t.Fatalf("err = %v, want GRAPH_CYCLE", err)
	}
}

func TestDot(t *testing.T) {
	g, err := Build([]Candidate{
		candidate("app", dep("lib", manifest.DepNormal)),
		candidate("lib"),
	})
	if err != nil {
		t.Fatal(err)
	}
	dot := g.Dot()
	if !strings.Contains(dot, `"app" -> "lib";`) {
		t.Errorf("dot missing edge:\n%s", dot)
	}
	if !strings.Contains(dot, "digraph crates {") {
		t.Errorf("dot missing header:\n%s", dot)
	}
}
