package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"locksync/internal/lockfile"
	"locksync/internal/target"
	"locksync/internal/telemetry"
	"locksync/internal/vcs"
)

type FetchOptions struct {
	// Repository is the upstream OWNER/REPO.
	Repository string
	// Branch is the upstream ref; empty means its default branch.
	Branch    string
	ServerURL string
	// WorkDir receives the upstream checkout.
	WorkDir string
}

// Fetch checks out the upstream at opts.Branch and returns its lockfile as
// committed at the tip, with the tip's short hash and author date. Any error
// is fatal for the run.
func Fetch(ctx context.Context, git Git, opts FetchOptions) (_ *lockfile.Artifact, _ lockfile.Revision, err error) {
	ctx, span := telemetry.Tracer("").Start(ctx, "locksync.fetch")
	span.SetAttributes(attribute.String("upstream", opts.Repository), attribute.String("ref", opts.Branch))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if git == nil {
		return nil, lockfile.Revision{}, errors.New("fetch: git is nil")
	}
	if opts.Repository == "" || opts.WorkDir == "" {
		return nil, lockfile.Revision{}, errors.New("fetch: repository and work dir are required")
	}

	dir := filepath.Join(opts.WorkDir, "upstream")
	if err := os.RemoveAll(dir); err != nil {
		return nil, lockfile.Revision{}, fmt.Errorf("clean %s: %w", dir, err)
	}
	// Only the tip is needed: its log entry and its committed lockfile.
	cloneOpts := vcs.CloneOptions{Ref: opts.Branch, Depth: 1}
	if err := git.Clone(ctx, vcs.RemoteURL(opts.ServerURL, opts.Repository), dir, cloneOpts); err != nil {
		return nil, lockfile.Revision{}, fmt.Errorf("checkout %s: %w", opts.Repository, err)
	}

	rev := lockfile.Revision{Repository: opts.Repository, Ref: opts.Branch}
	if rev.Ref == "" {
		if rev.Ref, err = git.CurrentBranch(ctx, dir); err != nil {
			return nil, lockfile.Revision{}, fmt.Errorf("resolve default branch of %s: %w", opts.Repository, err)
		}
	}
	if rev.Hash, rev.Date, err = git.HeadRevision(ctx, dir); err != nil {
		return nil, lockfile.Revision{}, fmt.Errorf("read log of %s: %w", opts.Repository, err)
	}

	data, err := git.ShowFile(ctx, dir, "HEAD", target.LockfileName)
	if err != nil {
		return nil, lockfile.Revision{}, fmt.Errorf("read %s at %s: %w", target.LockfileName, rev.Hash, err)
	}
	if _, err := lockfile.Parse(data); err != nil {
		return nil, lockfile.Revision{}, fmt.Errorf("upstream %s at %s: %w", target.LockfileName, rev.Hash, err)
	}
	art, err := lockfile.NewArtifact(target.LockfileName, data)
	if err != nil {
		return nil, lockfile.Revision{}, err
	}

	span.SetAttributes(attribute.String("hash", rev.Hash), attribute.String("digest", art.Digest()))
	return art, rev, nil
}

// Publish persists the fetch outputs: the artifact and revision.env into
// artifactDir, and head-hash/head-date into the workflow outputs file.
// Empty paths are skipped.
func Publish(art *lockfile.Artifact, rev lockfile.Revision, artifactDir, outputsFile string) ([]string, error) {
	var written []string
	if artifactDir != "" {
		paths, err := lockfile.Save(artifactDir, art, rev)
		if err != nil {
			return nil, fmt.Errorf("save artifact: %w", err)
		}
		written = append(written, paths...)
	}
	if err := lockfile.AppendOutputs(outputsFile, rev); err != nil {
		return written, err
	}
	return written, nil
}
