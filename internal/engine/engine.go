package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"locksync/internal/config"
	gh "locksync/internal/github"
	"locksync/internal/lockfile"
	"locksync/internal/output"
	"locksync/internal/target"
	"locksync/internal/telemetry"
)

func exitCodeForRun(fatal, partial bool) int {
	// Exit code contract:
	// 0 = every target synced (or was already in sync)
	// 2 = partial failure (some targets errored)
	// 3 = fatal error (config, auth or fetch; no target was synced)
	if fatal {
		return 3
	}
	if partial {
		return 2
	}
	return 0
}

// ExitFatal is returned for errors that stop the run before any target syncs.
const ExitFatal = 3

type Engine struct {
	Git   Git
	Cargo Cargo
	PRs   PullRequests

	// Stdout receives console and emitted output; Stderr receives progress.
	// Both default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

func (e *Engine) stdout() io.Writer {
	if e.Stdout == nil {
		return os.Stdout
	}
	return e.Stdout
}

func (e *Engine) stderr() io.Writer {
	if e.Stderr == nil {
		return os.Stderr
	}
	return e.Stderr
}

func (e *Engine) progress(cfg *config.Config, format string, args ...any) {
	if cfg.Output.NoConsole {
		return
	}
	fmt.Fprintf(e.stderr(), format+"\n", args...)
}

func (e *Engine) setupOutputManager(cfg *config.Config) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(e.stdout(), cfg.Output.ConsoleFormat)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(e.stdout(), emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Summary Sink
	if cfg.Output.Summary != "" {
		ss, err := output.NewSummarySink(cfg.Output.Summary, cfg.Source.ServerURL)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(ss); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

// workDir returns the directory for checkouts and a cleanup func. A temp dir
// is created when none is configured; configured dirs are never removed.
func workDir(cfg *config.Config) (string, func(), error) {
	if cfg.Runtime.WorkDir != "" {
		if err := os.MkdirAll(cfg.Runtime.WorkDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("create work dir: %w", err)
		}
		return cfg.Runtime.WorkDir, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "locksync-")
	if err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}
	if cfg.Runtime.KeepWorkDir {
		return dir, func() {}, nil
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func fetchOptions(cfg *config.Config, dir string) FetchOptions {
	return FetchOptions{
		Repository: cfg.Source.Repository,
		Branch:     cfg.Source.Branch,
		ServerURL:  cfg.Source.ServerURL,
		WorkDir:    dir,
	}
}

func syncOptions(cfg *config.Config, dir string) SyncOptions {
	return SyncOptions{
		ServerURL:     cfg.Source.ServerURL,
		Branch:        cfg.Source.Branch,
		SyncBranch:    cfg.PullRequest.Branch,
		Labels:        cfg.PullRequest.Labels,
		Identity:      cfg.Identity(),
		CommitMessage: cfg.PullRequest.CommitMessage,
		AutoMerge:     cfg.PullRequest.AutoMerge,
		MergeMethod:   gh.MergeMethod(strings.ToUpper(cfg.PullRequest.MergeMethod)),
		RunURL:        cfg.PullRequest.RunURL,
		SkipToolchain: cfg.Runtime.SkipToolchain,
		DryRun:        cfg.Runtime.DryRun,
		WorkDir:       filepath.Join(dir, "targets"),
		KeepCheckouts: cfg.Runtime.KeepWorkDir,
	}
}

// fetchAndPublish runs the fetch stage and persists its outputs. Any error is
// fatal.
func (e *Engine) fetchAndPublish(ctx context.Context, cfg *config.Config, dir string) (*lockfile.Artifact, lockfile.Revision, error) {
	e.progress(cfg, "Fetching %s from %s...", target.LockfileName, cfg.Source.Repository)
	art, rev, err := Fetch(ctx, e.Git, fetchOptions(cfg, dir))
	if err != nil {
		return nil, lockfile.Revision{}, err
	}
	written, err := Publish(art, rev, cfg.Source.ArtifactDir, cfg.Source.GitHubOutput)
	if err != nil {
		return nil, lockfile.Revision{}, err
	}
	e.progress(cfg, "Upstream %s@%s (%s).", rev.Repository, rev.Hash, rev.Date)
	for _, p := range written {
		e.progress(cfg, "Wrote %s.", p)
	}
	return art, rev, nil
}

// Run executes the fetch stage, then syncs every target. It returns the
// process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config, targets []target.Target) (code int) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
	defer cancel()

	ctx, span := telemetry.Tracer("").Start(ctx, "locksync.run")
	span.SetAttributes(
		attribute.String("upstream", cfg.Source.Repository),
		attribute.Int("targets", len(targets)),
		attribute.Bool("dry_run", cfg.Runtime.DryRun),
	)
	defer func() {
		span.SetAttributes(attribute.Int("exit_code", code))
		if code != 0 {
			span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", code))
		}
		span.End()
	}()

	outMgr, err := e.setupOutputManager(cfg)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false)
	}
	defer func() {
		if err := outMgr.Close(); err != nil {
			fmt.Fprintf(e.stderr(), "Error closing output sinks: %v\n", err)
		}
	}()

	_ = outMgr.Write(output.Event{Type: output.EventRunStarted, Targets: len(targets), DryRun: cfg.Runtime.DryRun})

	fatal := func(err error) int {
		fmt.Fprintf(e.stderr(), "Error: %s\n", gh.DescribeError(err, cfg.Runtime.Verbose))
		code := exitCodeForRun(true, false)
		_ = outMgr.Write(output.Event{Type: output.EventRunFinished, Error: gh.DescribeError(err, cfg.Runtime.Verbose), ExitCode: code})
		return code
	}

	dir, cleanup, err := workDir(cfg)
	if err != nil {
		return fatal(err)
	}
	defer cleanup()

	art, rev, err := e.fetchAndPublish(ctx, cfg, dir)
	if err != nil {
		return fatal(err)
	}
	_ = outMgr.Write(output.Event{Type: output.EventFetchFinished, Revision: &rev, Digest: art.Digest()})

	syncer := &Syncer{Git: e.Git, Cargo: e.Cargo, PRs: e.PRs, Opts: syncOptions(cfg, dir)}
	scheduler, err := NewScheduler(syncer.Sync, cfg.Runtime.Concurrency)
	if err != nil {
		return fatal(err)
	}

	var verbose io.Writer
	if cfg.Runtime.Verbose {
		verbose = e.stderr()
	}
	counter := newTargetCounter(telemetry.Meter(""), targetCounterName, verbose)

	e.progress(cfg, "Syncing %d targets...", len(targets))
	onStart := func(t target.Target) {
		_ = outMgr.Write(output.Event{Type: output.EventTargetStarted, Target: t.FullName()})
	}

	partial := false
	for res := range scheduler.Execute(ctx, targets, art, rev, onStart) {
		if res.Failed() {
			partial = true
		}
		out := res.Output(cfg.Runtime.Verbose)
		if counter != nil {
			counter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("operation", out.Operation),
				attribute.String("outcome", strings.ToLower(out.Label())),
			))
		}
		_ = outMgr.Write(out)
	}

	code = exitCodeForRun(false, partial)
	tally := outMgr.Tally()
	_ = outMgr.Write(output.Event{Type: output.EventRunFinished, Tally: &tally, ExitCode: code})
	return code
}

// RunFetch executes the fetch stage only: the upstream lockfile is written to
// the artifact dir and the revision to the workflow outputs.
func (e *Engine) RunFetch(ctx context.Context, cfg *config.Config) int {
	ctx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
	defer cancel()

	dir, cleanup, err := workDir(cfg)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error: %v\n", err)
		return ExitFatal
	}
	defer cleanup()

	if _, _, err := e.fetchAndPublish(ctx, cfg, dir); err != nil {
		fmt.Fprintf(e.stderr(), "Error: %s\n", gh.DescribeError(err, cfg.Runtime.Verbose))
		return ExitFatal
	}
	return 0
}

const targetCounterName = "locksync.targets"

// newTargetCounter creates the per-target counter. An instrument error is
// traced to verbose (when set); the run continues with whatever instrument the
// meter returned, possibly nil.
func newTargetCounter(meter metric.Meter, name string, verbose io.Writer) metric.Int64Counter {
	counter, err := meter.Int64Counter(name,
		metric.WithDescription("Targets synced, by operation and outcome"))
	if err != nil && verbose != nil {
		_, _ = fmt.Fprintf(verbose, "[verbose] telemetry: counter %s: %v\n", name, err)
	}
	return counter
}
