package cargo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner invokes the Rust toolchain for a checked-out repository.
type Runner struct {
	cargo   string
	rustup  string
	verbose io.Writer
}

type Option func(*Runner)

func WithCargo(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.cargo = path
		}
	}
}

func WithRustup(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.rustup = path
		}
	}
}

// WithVerbose traces every invocation to w.
func WithVerbose(w io.Writer) Option {
	return func(r *Runner) {
		r.verbose = w
	}
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{cargo: "cargo", rustup: "rustup"}
	for _, apply := range opts {
		if apply != nil {
			apply(r)
		}
	}
	return r
}

// PrepareToolchain runs `rustup show` in dir. Showing the active toolchain
// installs the one pinned by rust-toolchain.toml when it is missing.
func (r *Runner) PrepareToolchain(ctx context.Context, dir string) error {
	return r.run(ctx, dir, r.rustup, "show")
}

// Check runs `cargo check` against manifestPath. Cargo rewrites the lockfile
// next to the manifest so checksums and workspace entries are consistent,
// while keeping the already locked versions.
func (r *Runner) Check(ctx context.Context, dir, manifestPath string) error {
	if manifestPath == "" {
		return errors.New("cargo check: manifest path is required")
	}
	return r.run(ctx, dir, r.cargo, "check", "--manifest-path", manifestPath)
}

func (r *Runner) run(ctx context.Context, dir, bin string, args ...string) error {
	if ctx == nil {
		return errors.New("cargo: ctx is nil")
	}
	if r.verbose != nil {
		_, _ = fmt.Fprintf(r.verbose, "[verbose] %s: %s\n", bin, strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %w\n%s", bin, args[0], err, tail(out.String(), 40))
	}
	return nil
}

// tail keeps the last n lines of s; compiler output can be very long.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
