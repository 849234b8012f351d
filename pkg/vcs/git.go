// Package vcs wraps the git operations release coordination needs:
// change detection against the last tag, pre-flight validation, and the
// release commit/tag/push sequence.
package vcs

import (
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/crateherd/crateherd/pkg/errors"
)

// Runner invokes git inside a repository root.
type Runner struct {
	Root   string
	Logger *log.Logger
}

// New creates a Runner for the given repository root.
func New(root string, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{Root: root, Logger: logger}
}

// Result is the outcome of one git invocation.
type Result struct {
	OK     bool
	Stdout string
	Stderr string
}

// Run executes git with the given arguments. Only a failure to spawn is
// an error; command failures come back with OK=false and the captured
// output for the caller to interpret.
func (g *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	g.Logger.Debug("git", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Root

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return Result{}, errors.Wrap(errors.ErrCodeGit, err,
				"running git %s", strings.Join(args, " "))
		}
	}
	return Result{
		OK:     err == nil,
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}, nil
}

// Options carries the git-related flags shared by the version and
// publish commands.
type Options struct {
	NoGitCommit bool
	AllowBranch string
	Amend       bool
	Message     string

	NoGitTag            bool
	TagExisting         bool
	NoIndividualTags    bool
	NoGlobalTag         bool
	TagPrivate          bool
	TagPrefix           string
	IndividualTagPrefix string
	TagMsg              []string
	IndividualTagMsg    string

	NoGitPush bool
	GitRemote string
}

// DefaultOptions mirrors the flag defaults.
func DefaultOptions() Options {
	return Options{
		TagPrefix:           "v",
		IndividualTagPrefix: "%n@",
		GitRemote:           "origin",
	}
}

// Validate runs the pre-flight checks before any manifest is touched:
// the root is a repository with commits, HEAD is on an allowed branch,
// and (unless pushing is disabled) the remote branch exists and the
// local branch is not behind it. Returns the current branch name.
func (g *Runner) Validate(ctx context.Context, opts Options, allowBranchConfig string) (string, error) {
	if opts.NoGitCommit {
		return "", nil
	}

	res, err := g.Run(ctx, "rev-list", "--count", "--all", "--max-count=1")
	if err != nil {
		return "", err
	}
	if strings.Contains(res.Stderr, "not a git repository") {
		return "", errors.New(errors.ErrCodeNotGit, "%s is not a git repository", g.Root)
	}
	if res.Stdout == "0" {
		return "", errors.New(errors.ErrCodeNoCommits, "the repository has no commits yet")
	}

	res, err = g.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := res.Stdout
	if branch == "HEAD" {
		return "", errors.New(errors.ErrCodeDetachedHead, "HEAD is detached, checkout a branch first")
	}

	allowBranch := opts.AllowBranch
	if allowBranch == "" {
		allowBranch = allowBranchConfig
	}
	if allowBranch == "" {
		allowBranch = "master"
	}

	// The historical default pattern is "master"; a repo whose default
	// branch is "main" should still pass it.
	testBranch := branch
	if branch == "main" && allowBranch == "master" {
		testBranch = "master"
	}
	ok, err := doublestar.Match(allowBranch, testBranch)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPattern, err,
			"invalid allow-branch pattern %q", allowBranch)
	}
	if !ok {
		return "", errors.New(errors.ErrCodeBranchNotAllowed,
			"branch %s does not match allowed pattern %s", branch, allowBranch)
	}

	if !opts.NoGitPush {
		remoteBranch := opts.GitRemote + "/" + branch
		res, err = g.Run(ctx, "show-ref", "--verify", "refs/remotes/"+remoteBranch)
		if err != nil {
			return "", err
		}
		if res.Stdout == "" {
			return "", errors.New(errors.ErrCodeNoRemote,
				"branch %s has no counterpart on remote %s", branch, opts.GitRemote)
		}
		if _, err = g.Run(ctx, "remote", "update"); err != nil {
			return "", err
		}
		res, err = g.Run(ctx, "rev-list", "--left-only", "--count", remoteBranch+"..."+branch)
		if err != nil {
			return "", err
		}
		if res.Stdout != "0" {
			return "", errors.New(errors.ErrCodeBehindRemote,
				"branch %s is behind %s, pull first", branch, remoteBranch)
		}
	}
	return branch, nil
}
