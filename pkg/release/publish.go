package release

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/crateherd/crateherd/pkg/cargo"
	"github.com/crateherd/crateherd/pkg/graph"
	"github.com/crateherd/crateherd/pkg/vcs"
)

// CargoPublisher is the slice of the cargo collaborator publishing
// needs.
type CargoPublisher interface {
	ConfigGet(ctx context.Context, name string) (string, error)
	Publish(ctx context.Context, name string, opts cargo.PublishOptions) error
}

// Index answers visibility questions against one registry index.
type Index interface {
	IsPublished(ctx context.Context, name, version string) (bool, error)
	Wait(ctx context.Context, name, version string) error
}

// Tagger applies per-package release tags as uploads land.
type Tagger interface {
	IndividualTag(ctx context.Context, opts vcs.Options, noIndividualTagsConfig bool, v vcs.TaggedVersion) error
}

// Coordinator publishes planned packages in dependency order, skipping
// versions the registry already has and waiting for each upload to
// become visible before moving on to its dependents.
type Coordinator struct {
	Cargo  CargoPublisher
	Index  func(indexURL string) Index
	Git    Tagger
	Logger *log.Logger

	GitOpts                vcs.Options
	NoIndividualTagsConfig bool

	NoVerify   bool
	AllowDirty bool
	Token      string
	Registry   string
}

// Publish walks the graph order. Re-running after a partial failure is
// safe: everything already visible in its index is skipped.
func (c *Coordinator) Publish(ctx context.Context, g *graph.Graph) error {
	logger := c.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	indexes := make(map[string]Index)

	for _, path := range g.Order() {
		cand, ok := g.Lookup(path)
		if !ok {
			continue
		}
		pkg := cand.Pkg
		if pkg.Private {
			continue
		}

		indexURL := ""
		if pkg.Registry != "" {
			url, err := c.Cargo.ConfigGet(ctx, fmt.Sprintf("registries.%s.index", pkg.Registry))
			if err != nil {
				return err
			}
			indexURL = url
		}
		index, ok := indexes[indexURL]
		if !ok {
			index = c.Index(indexURL)
			indexes[indexURL] = index
		}

		version := cand.Version.String()
		published, err := index.IsPublished(ctx, pkg.Name, version)
		if err != nil {
			return err
		}
		if published {
			logger.Info("already published", "crate", pkg.Name, "version", version)
			continue
		}

		err = c.Cargo.Publish(ctx, pkg.Name, cargo.PublishOptions{
			ManifestPath: pkg.ManifestPath,
			NoVerify:     c.NoVerify,
			AllowDirty:   c.AllowDirty,
			Registry:     c.Registry,
			Token:        c.Token,
		})
		if err != nil {
			return err
		}
		if err := index.Wait(ctx, pkg.Name, version); err != nil {
			return err
		}
		logger.Info("published", "crate", pkg.Name, "version", version)

		if c.Git != nil {
			tagged := vcs.TaggedVersion{Name: pkg.Name, Version: cand.Version, Private: pkg.Private}
			if err := c.Git.IndividualTag(ctx, c.GitOpts, c.NoIndividualTagsConfig, tagged); err != nil {
				return err
			}
		}
	}
	return nil
}
