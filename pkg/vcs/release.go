package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/crateherd/crateherd/pkg/errors"
)

// TaggedVersion is one released package as the tagging machinery sees
// it: enough to expand %n / %v templates and honor private filtering.
type TaggedVersion struct {
	Name    string
	Version *semver.Version
	Private bool
}

// Commit stages and commits the rewritten manifests. The message
// defaults to "Release %v" where %v is the shared version, or
// "independent packages" when no single version covers the plan; the
// body lists every name@version pair.
func (g *Runner) Commit(ctx context.Context, opts Options, shared *semver.Version, versions []TaggedVersion) error {
	if opts.NoGitCommit {
		return nil
	}
	g.Logger.Info("committing changes")

	res, err := g.Run(ctx, "add", "-u")
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(errors.ErrCodeGit, "git add failed: %s", res.Stderr)
	}

	args := []string{"commit"}
	if opts.Amend {
		args = append(args, "--amend", "--no-edit")
	} else {
		msg := opts.Message
		if msg == "" {
			msg = "Release %v"
		}
		var lines []string
		for _, v := range versions {
			lines = append(lines, fmt.Sprintf("%s@%s", v.Name, v.Version))
		}
		msg = fmt.Sprintf("%s\n\n%s\n\nGenerated by crateherd", msg, strings.Join(lines, "\n"))

		replacement := "independent packages"
		if shared != nil {
			replacement = shared.String()
		}
		args = append(args, "-m", strings.ReplaceAll(msg, "%v", replacement))
	}

	res, err = g.Run(ctx, args...)
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(errors.ErrCodeGit, "git commit failed: %s", res.Stderr)
	}
	return nil
}

// ShouldTag reports whether tags apply to the current run: either a
// release commit was just created, or tagging of the existing HEAD was
// requested explicitly.
func (o Options) ShouldTag() bool {
	return (!o.NoGitCommit || o.TagExisting) && !o.NoGitTag
}

// Tag creates an annotated tag unless it already exists.
func (g *Runner) Tag(ctx context.Context, tag string, msgs []string) error {
	res, err := g.Run(ctx, "tag")
	if err != nil {
		return err
	}
	for _, existing := range strings.Split(res.Stdout, "\n") {
		if existing == tag {
			g.Logger.Info("tag already exists", "tag", tag)
			return nil
		}
	}

	args := []string{"tag", tag, "-a"}
	for _, msg := range msgs {
		args = append(args, "-m", msg)
	}
	res, err = g.Run(ctx, args...)
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(errors.ErrCodeGit, "git tag %s failed: %s", tag, res.Stderr)
	}
	return nil
}

// GlobalTag applies the workspace-level tag (prefix + shared version).
// Each --tag-msg template may embed a %{...} scope expanded once per
// released package with %n and %v, and a bare %v for the shared version.
func (g *Runner) GlobalTag(ctx context.Context, opts Options, shared *semver.Version, versions []TaggedVersion) error {
	if !opts.ShouldTag() || opts.NoGlobalTag || shared == nil {
		return nil
	}
	tag := opts.TagPrefix + shared.String()

	var msgs []string
	for _, tmpl := range opts.TagMsg {
		msg, err := expandTagMsg(tmpl, opts, versions)
		if err != nil {
			return err
		}
		msgs = append(msgs, strings.ReplaceAll(msg, "%v", shared.String()))
	}
	if len(msgs) == 0 {
		msgs = []string{tag}
	}
	return g.Tag(ctx, tag, msgs)
}

// IndividualTag applies the per-package tag (prefix with %n expanded,
// then the version). Private packages are skipped unless requested, as
// is the whole step when individual tags are disabled by flag or config.
func (g *Runner) IndividualTag(ctx context.Context, opts Options, noIndividualTagsConfig bool, v TaggedVersion) error {
	if !opts.ShouldTag() || opts.NoIndividualTags || noIndividualTagsConfig {
		return nil
	}
	if v.Private && !opts.TagPrivate {
		return nil
	}
	tag := strings.ReplaceAll(opts.IndividualTagPrefix, "%n", v.Name) + v.Version.String()
	msg := tag
	if opts.IndividualTagMsg != "" {
		msg = strings.ReplaceAll(opts.IndividualTagMsg, "%n", v.Name)
		msg = strings.ReplaceAll(msg, "%v", v.Version.String())
	}
	return g.Tag(ctx, tag, []string{msg})
}

// Push pushes the release commit and its tags in one go.
func (g *Runner) Push(ctx context.Context, opts Options, branch string) error {
	if opts.NoGitPush {
		return nil
	}
	g.Logger.Info("pushing")

	res, err := g.Run(ctx, "push", "--follow-tags", opts.GitRemote, branch)
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(errors.ErrCodeGit, "git push failed: %s", res.Stderr)
	}
	return nil
}

func expandTagMsg(tmpl string, opts Options, versions []TaggedVersion) (string, error) {
	var b strings.Builder
	for i, scope := range strings.Split(tmpl, "%{") {
		if i == 0 {
			b.WriteString(scope)
			continue
		}
		section, rest, found := strings.Cut(scope, "}")
		if !found {
			return "", errors.New(errors.ErrCodeGit, "unterminated %%{ scope in tag message %q", tmpl)
		}
		for _, v := range versions {
			if v.Private && !opts.TagPrivate {
				continue
			}
			line := strings.ReplaceAll(section, "%n", v.Name)
			b.WriteString(strings.ReplaceAll(line, "%v", v.Version.String()))
		}
		b.WriteString(rest)
	}
	return b.String(), nil
}
