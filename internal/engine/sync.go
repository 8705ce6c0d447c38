package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	gh "locksync/internal/github"
	"locksync/internal/lockfile"
	"locksync/internal/target"
	"locksync/internal/telemetry"
	"locksync/internal/vcs"
)

type SyncOptions struct {
	ServerURL string
	// Branch is checked out in every target and used as the pull request
	// base. Empty means each target's default branch.
	Branch        string
	SyncBranch    string
	Labels        []string
	Identity      vcs.Identity
	CommitMessage string
	AutoMerge     bool
	MergeMethod   gh.MergeMethod
	RunURL        string
	SkipToolchain bool
	DryRun        bool
	// WorkDir holds one checkout per target.
	WorkDir string
	// KeepCheckouts leaves target checkouts on disk.
	KeepCheckouts bool
}

// Syncer runs the per-target pipeline. It is safe for concurrent use as long
// as its collaborators are.
type Syncer struct {
	Git   Git
	Cargo Cargo
	PRs   PullRequests
	Opts  SyncOptions
}

// Sync applies the fetched lockfile to t and upserts the sync pull request
// when it changes anything. Errors are recorded on the result, never returned,
// so one target cannot affect another.
func (s *Syncer) Sync(ctx context.Context, t target.Target, art *lockfile.Artifact, rev lockfile.Revision) TargetResult {
	start := time.Now()
	ctx, span := telemetry.Tracer("").Start(ctx, "locksync.sync")
	span.SetAttributes(attribute.String("target", t.FullName()))

	res := s.sync(ctx, t, art, rev)
	res.Duration = time.Since(start)

	span.SetAttributes(attribute.String("operation", string(res.Operation)), attribute.Bool("changed", res.Changed))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Step))
	}
	span.End()
	return res
}

func (s *Syncer) sync(ctx context.Context, t target.Target, art *lockfile.Artifact, rev lockfile.Revision) TargetResult {
	res := TargetResult{Target: t, Operation: gh.OperationNone}
	if art == nil {
		return res.fail(StepOverwrite, errors.New("no lockfile artifact"))
	}
	if err := ctx.Err(); err != nil {
		return res.fail(StepCheckout, err)
	}

	// 1. Checkout with submodules.
	dir := filepath.Join(s.Opts.WorkDir, t.Owner, t.Name)
	if err := os.RemoveAll(dir); err != nil {
		return res.fail(StepCheckout, err)
	}
	if !s.Opts.KeepCheckouts {
		defer func() { _ = os.RemoveAll(dir) }()
	}
	cloneOpts := vcs.CloneOptions{Ref: s.Opts.Branch, Submodules: true}
	if err := s.Git.Clone(ctx, vcs.RemoteURL(s.Opts.ServerURL, t.FullName()), dir, cloneOpts); err != nil {
		return res.fail(StepCheckout, err)
	}

	// 2. Manifest location is a static per-target property.
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(t.ManifestPath()))); err != nil {
		return res.fail(StepResolve, fmt.Errorf("manifest %s: %w", t.ManifestPath(), err))
	}

	// 3. Replace the lockfile wholesale.
	if _, err := art.WriteTo(filepath.Join(dir, filepath.FromSlash(t.ManifestDir))); err != nil {
		return res.fail(StepOverwrite, err)
	}

	// 4. Re-resolve; this rewrites checksums but keeps the pinned versions.
	if !s.Opts.SkipToolchain {
		if err := s.Cargo.PrepareToolchain(ctx, dir); err != nil {
			return res.fail(StepToolchain, err)
		}
	}
	if err := s.Cargo.Check(ctx, dir, t.ManifestPath()); err != nil {
		return res.fail(StepCheck, err)
	}

	// 5. Prove it.
	if err := verifyPins(art, filepath.Join(dir, filepath.FromSlash(t.LockfilePath()))); err != nil {
		return res.fail(StepVerify, err)
	}

	// 6. Diff against the target's last commit.
	changed, err := s.Git.Changed(ctx, dir, t.LockfilePath())
	if err != nil {
		return res.fail(StepDiff, err)
	}
	res.Changed = changed
	if s.Opts.DryRun {
		return res
	}
	if !changed {
		// Nothing to propose; drop a leftover sync branch so no stale pull
		// request stays open. Best effort.
		deleted, err := s.PRs.DeleteBranch(ctx, t.Owner, t.Name, s.Opts.SyncBranch)
		res.BranchDeleted = err == nil && deleted
		return res
	}

	// 7. Push the sync branch and upsert the pull request.
	if err := s.Git.CommitAndPush(ctx, dir, vcs.CommitOptions{
		Branch:    s.Opts.SyncBranch,
		Paths:     []string{t.LockfilePath()},
		Message:   s.Opts.CommitMessage,
		Author:    s.Opts.Identity,
		Committer: s.Opts.Identity,
	}); err != nil {
		return res.fail(StepPush, err)
	}

	base := s.Opts.Branch
	if base == "" {
		if base, err = s.PRs.DefaultBranch(ctx, t.Owner, t.Name); err != nil {
			return res.fail(StepPullRequest, err)
		}
	}
	pr, err := s.PRs.UpsertPullRequest(ctx, gh.PullRequestSpec{
		Owner:  t.Owner,
		Repo:   t.Name,
		Head:   s.Opts.SyncBranch,
		Base:   base,
		Title:  PullRequestTitle(rev),
		Body:   PullRequestBody(t, rev, s.Opts.ServerURL, s.Opts.RunURL),
		Labels: s.Opts.Labels,
	})
	if err != nil {
		return res.fail(StepPullRequest, err)
	}
	res.Operation, res.Number, res.URL = pr.Operation, pr.Number, pr.URL

	// 8. Queue fresh pull requests for merge. Updated ones already are, or
	// had auto-merge turned off by a maintainer on purpose.
	if pr.Operation == gh.OperationCreated && s.Opts.AutoMerge {
		if err := s.PRs.EnableAutoMerge(ctx, pr.NodeID, s.Opts.MergeMethod); err != nil {
			return res.fail(StepAutoMerge, err)
		}
		res.AutoMerge = true
	}
	return res
}

func verifyPins(art *lockfile.Artifact, regenerated string) error {
	pinned, err := lockfile.Parse(art.Data)
	if err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	data, err := os.ReadFile(regenerated)
	if err != nil {
		return fmt.Errorf("read regenerated lockfile: %w", err)
	}
	got, err := lockfile.Parse(data)
	if err != nil {
		return fmt.Errorf("regenerated lockfile: %w", err)
	}
	return lockfile.CheckPinsPreserved(pinned, got)
}
