package release

import (
	"fmt"
	"io"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/crateherd/crateherd/pkg/errors"
	"github.com/crateherd/crateherd/pkg/manifest"
	"github.com/crateherd/crateherd/pkg/workspace"
)

// Options controls how versions are chosen.
type Options struct {
	// Bump skips the interactive version menu with a fixed answer.
	Bump *Bump
	// Custom is the version used when Bump is custom.
	Custom *semver.Version
	// PreID is the prerelease identifier for pre-bumps.
	PreID string
	// Exact pins rewritten dependency requirements with "=".
	Exact bool
	// Yes skips the final confirmation.
	Yes bool
}

// Change is one package's planned version move.
type Change struct {
	Name    string
	From    *semver.Version
	To      *semver.Version
	Private bool
}

// Plan is the confirmed outcome of version planning.
type Plan struct {
	Changes  []Change
	Versions map[string]*semver.Version
	// Shared is set when every cohort settled on one common version;
	// it feeds the release commit message and the global tag.
	Shared     *semver.Version
	AutoInject bool
	Exact      bool
}

// Planner drives the interactive planning flow.
type Planner struct {
	Prompter Prompter
	Out      io.Writer
	Logger   *log.Logger
}

// NewPlanner wires a planner; out receives the plan listing and nil
// defaults to discarding it.
func NewPlanner(prompter Prompter, out io.Writer, logger *log.Logger) *Planner {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Planner{Prompter: prompter, Out: out, Logger: logger}
}

type groupState struct {
	group      *workspace.Group
	changed    []*workspace.Package
	unchanged  []*workspace.Package
	newVersion *semver.Version
}

// Plan computes a new version for every changed package, then keeps
// pulling in packages whose dependency requirements the plan breaks
// until a fixpoint is reached, and finally asks for confirmation.
// A declined plan returns nil with no error and nothing written.
func (p *Planner) Plan(groups workspace.Groups, changed map[string]bool, opts Options) (*Plan, error) {
	var states []*groupState
	byName := make(map[string]*workspace.Package)
	for _, g := range groups {
		if g.Name == workspace.GroupExcluded {
			continue
		}
		st := &groupState{group: g}
		for _, pkg := range g.Packages {
			byName[pkg.Name] = pkg
			if changed[pkg.Name] {
				st.changed = append(st.changed, pkg)
			} else {
				st.unchanged = append(st.unchanged, pkg)
			}
		}
		states = append(states, st)
	}

	plan := &Plan{Versions: make(map[string]*semver.Version), Exact: opts.Exact}

	for {
		planned := false
		for _, st := range states {
			if len(st.changed) == 0 {
				continue
			}
			planned = true
			if err := p.planGroup(st, plan, opts); err != nil {
				return nil, err
			}
			st.changed = nil
		}
		if !planned {
			break
		}

		// Pull in packages whose requirement toward a replanned
		// package no longer holds, or never constrained it at all.
		pulled := false
		for _, st := range states {
			var still []*workspace.Package
			for _, pkg := range st.unchanged {
				if p.violated(pkg, plan.Versions) {
					st.changed = append(st.changed, pkg)
					pulled = true
				} else {
					still = append(still, pkg)
				}
			}
			st.unchanged = still
		}
		if !pulled {
			break
		}
	}

	if len(plan.Changes) == 0 {
		return nil, nil
	}

	plan.Shared = sharedVersion(states)

	if err := p.alertUnversioned(plan, byName); err != nil {
		return nil, err
	}

	confirmed, err := p.confirm(plan, opts)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, nil
	}
	return plan, nil
}

// planGroup handles one group's pending changed packages: one shared
// answer for the cohort, one answer per independent package.
func (p *Planner) planGroup(st *groupState, plan *Plan, opts Options) error {
	var cohort, independent []*workspace.Package
	for _, pkg := range st.changed {
		if pkg.Independent {
			independent = append(independent, pkg)
		} else {
			cohort = append(cohort, pkg)
		}
	}

	if len(cohort) > 0 {
		cur := cohort[0].Version
		for _, pkg := range cohort[1:] {
			if pkg.Version.GreaterThan(cur) {
				cur = pkg.Version
			}
		}

		if st.newVersion == nil {
			if st.group.Version != nil {
				st.newVersion = st.group.Version
			} else {
				p.Logger.Info("current common version", "group", st.group.Name, "version", cur)
				next, err := p.askVersion(cur, "", opts)
				if err != nil {
					return err
				}
				st.newVersion = next
			}
		}

		for _, pkg := range cohort {
			if pkg.Version.Equal(st.newVersion) {
				continue
			}
			plan.add(pkg, st.newVersion)
		}
	}

	for _, pkg := range independent {
		next, err := p.askVersion(pkg.Version, pkg.Name, opts)
		if err != nil {
			return err
		}
		plan.add(pkg, next)
	}
	return nil
}

func (plan *Plan) add(pkg *workspace.Package, to *semver.Version) {
	plan.Changes = append(plan.Changes, Change{
		Name:    pkg.Name,
		From:    pkg.Version,
		To:      to,
		Private: pkg.Private,
	})
	plan.Versions[pkg.Name] = to
}

// violated reports whether any of pkg's dependency requirements stops
// matching a planned version, or was unconstrained toward one.
func (p *Planner) violated(pkg *workspace.Package, versions map[string]*semver.Version) bool {
	for _, d := range pkg.Deps {
		next, ok := versions[d.CrateName()]
		if !ok {
			continue
		}
		req := d.Req
		if req == "" {
			req = "*"
		}
		if manifest.IsUnversionedReq(req) {
			return true
		}
		matches, err := manifest.MatchesReq(req, next)
		if err != nil || !matches {
			return true
		}
	}
	return false
}

// sharedVersion returns the one version every cohort agreed on, or nil
// when groups diverged or only independent packages were planned.
func sharedVersion(states []*groupState) *semver.Version {
	var shared *semver.Version
	for _, st := range states {
		if st.newVersion == nil {
			continue
		}
		if shared != nil && !shared.Equal(st.newVersion) {
			return nil
		}
		shared = st.newVersion
	}
	return shared
}

type unversionedDep struct {
	Dep string
	Req string
	To  *semver.Version
}

// alertUnversioned surfaces dependency edges that point at a replanned
// package without any version constraint, and asks whether to review,
// auto-inject explicit requirements, or leave them alone.
func (p *Planner) alertUnversioned(plan *Plan, byName map[string]*workspace.Package) error {
	entries := make(map[string][]unversionedDep)
	var order []string
	for _, c := range plan.Changes {
		pkg := byName[c.Name]
		if pkg == nil {
			continue
		}
		for _, d := range pkg.Deps {
			next, ok := plan.Versions[d.CrateName()]
			if !ok {
				continue
			}
			req := d.Req
			if req == "" {
				req = "*"
			}
			if !manifest.IsUnversionedReq(req) {
				continue
			}
			if _, seen := entries[c.Name]; !seen {
				order = append(order, c.Name)
			}
			entries[c.Name] = append(entries[c.Name], unversionedDep{Dep: d.Name, Req: req, To: next})
		}
	}
	if len(entries) == 0 {
		return nil
	}

	for {
		choice, err := p.Prompter.Select(
			fmt.Sprintf("You have %d packages with unversioned dependencies", len(entries)),
			[]string{"Review Dependencies", "Auto-version", "Skip"}, 0)
		if err != nil {
			return err
		}
		switch choice {
		case 2:
			return nil
		case 1:
			ok, err := p.Prompter.Confirm("Are you sure you want this tool to auto-inject these versions?", false)
			if err != nil {
				return err
			}
			if ok {
				plan.AutoInject = true
				return nil
			}
		default:
			fmt.Fprintln(p.Out, "Packages with unversioned dependencies:")
			for _, name := range order {
				fmt.Fprintf(p.Out, " | %s\n", name)
				for _, d := range entries[name] {
					fmt.Fprintf(p.Out, " |   %s: %s => %s\n", d.Dep, d.Req, d.To)
				}
			}
		}
	}
}

func (p *Planner) confirm(plan *Plan, opts Options) (bool, error) {
	fmt.Fprintln(p.Out)
	fmt.Fprintln(p.Out, "Changes:")
	for _, c := range plan.Changes {
		fmt.Fprintf(p.Out, " - %s: %s => %s\n", c.Name, c.From, c.To)
	}
	fmt.Fprintln(p.Out)

	if opts.Yes {
		return true, nil
	}
	return p.Prompter.Confirm("Are you sure you want to create these versions?", false)
}

// askVersion resolves one version choice, through the menu or the
// supplied non-interactive bump.
func (p *Planner) askVersion(cur *semver.Version, pkgName string, opts Options) (*semver.Version, error) {
	items := versionOptions(cur, opts.PreID)
	labels := make([]string, 0, len(items)+2)
	for _, it := range items {
		labels = append(labels, it.Label)
	}
	labels = append(labels, "Custom Prerelease", "Custom Version")

	var selected int
	if opts.Bump != nil {
		selected = opts.Bump.selected()
	} else {
		prompt := fmt.Sprintf("Select a new version (currently %s)", cur)
		if pkgName != "" {
			prompt = fmt.Sprintf("Select a new version for %s (currently %s)", pkgName, cur)
		}
		var err error
		selected, err = p.Prompter.Select(prompt, labels, 0)
		if err != nil {
			return nil, err
		}
	}

	switch selected {
	case 6:
		id, next := CustomPre(cur)
		preID := opts.PreID
		if preID == "" {
			var err error
			preID, err = p.Prompter.Input(
				fmt.Sprintf("Enter a prerelease identifier (default: '%s', yielding %s)", id, next), id)
			if err != nil {
				return nil, err
			}
		}
		return IncPreID(cur, preID), nil
	case 7:
		if opts.Custom != nil {
			return opts.Custom, nil
		}
		raw, err := p.Prompter.Input("Enter a custom version", "")
		if err != nil {
			return nil, err
		}
		next, err := semver.NewVersion(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeBadManifest, err, "invalid custom version %q", raw)
		}
		return next, nil
	default:
		return items[selected].Version, nil
	}
}

// SortedNames returns the planned package names in lexical order.
func (plan *Plan) SortedNames() []string {
	names := make([]string, 0, len(plan.Versions))
	for name := range plan.Versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
