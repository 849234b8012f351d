// Package graph orders workspace packages so that dependencies publish
// before their dependents.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/crateherd/crateherd/pkg/errors"
	"github.com/crateherd/crateherd/pkg/manifest"
	"github.com/crateherd/crateherd/pkg/workspace"
)

// Candidate pairs a package with the version it is being released at.
type Candidate struct {
	Pkg     *workspace.Package
	Version *semver.Version
}

// Graph is the dependency graph restricted to a candidate set, with a
// deterministic dependencies-first order over manifest paths.
type Graph struct {
	byPath map[string]Candidate
	order  []string
}

// Build walks normal and build dependency edges between candidates in a
// depth-first post-order. Edges to packages outside the candidate set
// are ignored. Re-running on the same input reproduces the same order.
// A dependency cycle is rejected rather than recursed into.
func Build(candidates []Candidate) (*Graph, error) {
	g := &Graph{byPath: make(map[string]Candidate, len(candidates))}
	byName := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		g.byPath[c.Pkg.ManifestPath] = c
		byName[c.Pkg.Name] = c
	}

	visited := make(map[string]bool, len(candidates))
	visiting := make(map[string]bool)

	var insert func(c Candidate, trail []string) error
	insert = func(c Candidate, trail []string) error {
		path := c.Pkg.ManifestPath
		if visited[path] {
			return nil
		}
		if visiting[path] {
			cycle := append(trail, c.Pkg.Name)
			return errors.New(errors.ErrCodeGraphCycle,
				"dependency cycle: %s", strings.Join(cycle, " -> "))
		}
		visiting[path] = true

		for _, d := range c.Pkg.Deps {
			if d.Kind == manifest.DepDev {
				continue
			}
			dep, ok := byName[d.CrateName()]
			if !ok {
				continue
			}
			if err := insert(dep, append(trail, c.Pkg.Name)); err != nil {
				return err
			}
		}

		delete(visiting, path)
		visited[path] = true
		g.order = append(g.order, path)
		return nil
	}

	for _, c := range candidates {
		if err := insert(c, nil); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Order returns manifest paths dependencies-first.
func (g *Graph) Order() []string {
	return g.order
}

// Lookup returns the candidate for a manifest path.
func (g *Graph) Lookup(path string) (Candidate, bool) {
	c, ok := g.byPath[path]
	return c, ok
}

// Dot renders the candidate-set dependency edges in graphviz syntax,
// one node per package labeled with its release version.
func (g *Graph) Dot() string {
	var b strings.Builder
	b.WriteString("digraph crates {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box];\n")

	names := make([]string, 0, len(g.byPath))
	byName := make(map[string]Candidate, len(g.byPath))
	for _, c := range g.byPath {
		names = append(names, c.Pkg.Name)
		byName[c.Pkg.Name] = c
	}
	sort.Strings(names)

	for _, name := range names {
		c := byName[name]
		fmt.Fprintf(&b, "  %q [label=%q];\n", name, fmt.Sprintf("%s\n%s", name, c.Version))
	}
	for _, name := range names {
		c := byName[name]
		seen := make(map[string]struct{})
		for _, d := range c.Pkg.Deps {
			if d.Kind == manifest.DepDev {
				continue
			}
			dep := d.CrateName()
			if _, ok := byName[dep]; !ok {
				continue
			}
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			fmt.Fprintf(&b, "  %q -> %q;\n", name, dep)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
