// Package cargo shells out to the cargo build tool.
package cargo

import (
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/crateherd/crateherd/pkg/errors"
)

// Runner invokes cargo subcommands inside a workspace root.
type Runner struct {
	Root   string
	Logger *log.Logger
}

// New creates a Runner for the given workspace root.
func New(root string, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{Root: root, Logger: logger}
}

// Run executes cargo with the given arguments and returns trimmed stdout
// and stderr. A non-zero exit is not an error here; callers inspect the
// output markers the way cargo's own tooling does.
func (r *Runner) Run(ctx context.Context, args []string, env []string) (string, string, error) {
	r.Logger.Debug("cargo", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "cargo", args...)
	cmd.Dir = r.Root
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return "", "", errors.Wrap(errors.ErrCodeCargo, err,
				"running cargo %s", strings.Join(args, " "))
		}
	}
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), nil
}

// ConfigGet resolves a cargo configuration key the way cargo itself
// would, including user-level config files. `cargo config get` is
// nightly-gated, so RUSTC_BOOTSTRAP=1 unlocks it on stable toolchains.
func (r *Runner) ConfigGet(ctx context.Context, name string) (string, error) {
	stdout, _, err := r.Run(ctx,
		[]string{"-Z", "unstable-options", "config", "get", name},
		[]string{"RUSTC_BOOTSTRAP=1"})
	if err != nil {
		return "", err
	}
	// Output is a single TOML assignment: `registries.foo.index = "https://..."`.
	value, err := parseConfigValue(stdout, name)
	if err != nil {
		return "", err
	}
	return value, nil
}

func parseConfigValue(stdout, name string) (string, error) {
	key, value, found := strings.Cut(strings.TrimSpace(stdout), " = ")
	if !found || strings.TrimSpace(key) != name {
		return "", errors.New(errors.ErrCodeBadConfigOutput,
			"unexpected `cargo config get %s` output: %q", name, stdout)
	}
	value = strings.TrimSpace(value)
	if len(value) < 2 || value[0] != '"' || value[len(value)-1] != '"' {
		return "", errors.New(errors.ErrCodeBadConfigOutput,
			"unexpected `cargo config get %s` value: %q", name, value)
	}
	return value[1 : len(value)-1], nil
}

// Update refreshes the lockfile entry for one package after its version
// changed. cargo reports failures on stderr with a non-zero exit, but
// also writes `error:` lines on partial failures, so both are checked.
func (r *Runner) Update(ctx context.Context, pkg string) error {
	_, stderr, err := r.Run(ctx, []string{"update", "-p", pkg}, nil)
	if err != nil {
		return err
	}
	if strings.Contains(stderr, "error:") {
		return errors.New(errors.ErrCodeUpdateFailed,
			"cargo update -p %s failed: %s", pkg, stderr)
	}
	return nil
}

// PublishOptions carries the flags forwarded to cargo publish.
type PublishOptions struct {
	ManifestPath string
	NoVerify     bool
	AllowDirty   bool
	Registry     string
	Token        string
}

// Publish uploads one crate. cargo publish reports progress on stderr;
// a run that never reaches "Uploading", or that prints an error marker,
// counts as failed even when the exit status is zero.
func (r *Runner) Publish(ctx context.Context, name string, opts PublishOptions) error {
	args := []string{"publish"}
	if opts.NoVerify {
		args = append(args, "--no-verify")
	}
	if opts.AllowDirty {
		args = append(args, "--allow-dirty")
	}
	if opts.Registry != "" {
		args = append(args, "--registry", opts.Registry)
	}
	if opts.Token != "" {
		args = append(args, "--token", opts.Token)
	}
	args = append(args, "--manifest-path", opts.ManifestPath)

	_, stderr, err := r.Run(ctx, args, nil)
	if err != nil {
		return err
	}
	if !strings.Contains(stderr, "Uploading") || strings.Contains(stderr, "error:") {
		return errors.New(errors.ErrCodePublishFailed, "failed to publish %s", name)
	}
	return nil
}
