package release

import (
	"context"
	"maps"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/crateherd/crateherd/pkg/errors"
	"github.com/crateherd/crateherd/pkg/manifest"
	"github.com/crateherd/crateherd/pkg/workspace"
)

// Updater refreshes the lockfile entry of one package after its
// manifest changed.
type Updater interface {
	Update(ctx context.Context, pkg string) error
}

// Apply rewrites every manifest the plan touches: each affected member
// in place, then the workspace root when inherited versions or shared
// dependency requirements live there, and finally the lockfile entries
// of the planned packages. There is no rollback once writing starts.
func (p *Planner) Apply(ctx context.Context, ws *workspace.Workspace, plan *Plan, up Updater) error {
	var wsVersion *semver.Version
	patchRoot := false

	for _, pkg := range ws.Packages {
		if !p.touched(pkg, plan) {
			continue
		}

		doc, err := os.ReadFile(pkg.ManifestPath)
		if err != nil {
			return errors.Wrap(errors.ErrCodeBadManifest, err, "reading %s", pkg.ManifestPath)
		}
		out, inherited, err := manifest.ChangeVersions(string(doc), pkg.Name, plan.Versions, plan.Exact, plan.AutoInject)
		if err != nil {
			return err
		}
		if err := os.WriteFile(pkg.ManifestPath, []byte(out+"\n"), 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeBadManifest, err, "writing %s", pkg.ManifestPath)
		}

		for name := range inherited {
			if _, ok := plan.Versions[name]; ok {
				patchRoot = true
			}
		}
		if pkg.InheritsVersion {
			if next, ok := plan.Versions[pkg.Name]; ok {
				wsVersion = next
			}
		}
	}

	if wsVersion != nil || patchRoot {
		doc, err := os.ReadFile(ws.RootManifestPath)
		if err != nil {
			return errors.Wrap(errors.ErrCodeBadManifest, err, "reading %s", ws.RootManifestPath)
		}
		rootVersions := maps.Clone(plan.Versions)
		if wsVersion != nil {
			rootVersions[manifest.WorkspacePackage] = wsVersion
		}
		out, _, err := manifest.ChangeVersions(string(doc), manifest.WorkspacePackage, rootVersions, plan.Exact, plan.AutoInject)
		if err != nil {
			return err
		}
		if err := os.WriteFile(ws.RootManifestPath, []byte(out+"\n"), 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeBadManifest, err, "writing %s", ws.RootManifestPath)
		}
	}

	if up != nil {
		for _, c := range plan.Changes {
			if err := up.Update(ctx, c.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// touched reports whether a package's manifest needs rewriting: either
// its own version moved, or it depends on a package whose version did.
func (p *Planner) touched(pkg *workspace.Package, plan *Plan) bool {
	if _, ok := plan.Versions[pkg.Name]; ok {
		return true
	}
	for _, d := range pkg.Deps {
		if _, ok := plan.Versions[d.CrateName()]; ok {
			return true
		}
	}
	return false
}
