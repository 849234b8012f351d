package vcs

import (
	"context"
	"regexp"
	"strconv"
)

var (
	shaDescRe = regexp.MustCompile(`^([0-9a-f]{7,40})(-dirty)?$`)
	tagDescRe = regexp.MustCompile(`^((?:.*@)?v?(.*))-(\d+)-g([0-9a-f]{7,40})(-dirty)?$`)
)

// ChangeData is the parsed `git describe` state of HEAD: the last tag
// to diff against (empty when the repo has never been tagged), the
// version embedded in that tag, and how many commits HEAD is past it.
type ChangeData struct {
	Since   string
	Version string
	SHA     string
	Count   int
	Dirty   bool
}

// Released reports whether HEAD already carries a release tag with no
// commits or local modifications on top.
func (d ChangeData) Released() bool {
	return d.Count == 0 && !d.Dirty
}

// Describe inspects HEAD. Tags from merged branches are ignored unless
// includeMergedTags is set, matching first-parent history walking.
func (g *Runner) Describe(ctx context.Context, includeMergedTags bool) (ChangeData, error) {
	args := []string{"describe", "--always", "--long", "--dirty", "--tags"}
	if !includeMergedTags {
		args = append(args, "--first-parent")
	}
	res, err := g.Run(ctx, args...)
	if err != nil {
		return ChangeData{}, err
	}

	d := parseDescription(res.Stdout)
	if d.Since == "" && d.SHA != "" {
		// No tag yet: every commit since the beginning counts as
		// unreleased history.
		count, err := g.revListCount(ctx, d.SHA)
		if err != nil {
			return ChangeData{}, err
		}
		d.Count = count
	}
	return d, nil
}

func (g *Runner) revListCount(ctx context.Context, sha string) (int, error) {
	res, err := g.Run(ctx, "rev-list", "--count", sha)
	if err != nil {
		return 0, err
	}
	n, _ := strconv.Atoi(res.Stdout)
	return n, nil
}

func parseDescription(desc string) ChangeData {
	var d ChangeData
	if caps := shaDescRe.FindStringSubmatch(desc); caps != nil {
		d.SHA = caps[1]
		d.Dirty = caps[2] != ""
		return d
	}
	if caps := tagDescRe.FindStringSubmatch(desc); caps != nil {
		d.Since = caps[1]
		d.Version = caps[2]
		d.Count, _ = strconv.Atoi(caps[3])
		d.SHA = caps[4]
		d.Dirty = caps[5] != ""
	}
	return d
}

// Diff returns the paths changed since the given ref, relative to the
// repository root.
func (g *Runner) Diff(ctx context.Context, since string) ([]string, error) {
	res, err := g.Run(ctx, "diff", "--name-only", "--relative", since)
	if err != nil {
		return nil, err
	}
	if res.Stdout == "" {
		return nil, nil
	}
	var files []string
	for _, line := range regexp.MustCompile(`\r?\n`).Split(res.Stdout, -1) {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
