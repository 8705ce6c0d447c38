package engine

import (
	"context"

	gh "locksync/internal/github"
	"locksync/internal/vcs"
)

// Git is the subset of *vcs.Git the engine drives.
type Git interface {
	Clone(ctx context.Context, url, dir string, opts vcs.CloneOptions) error
	HeadRevision(ctx context.Context, dir string) (hash, date string, err error)
	CurrentBranch(ctx context.Context, dir string) (string, error)
	ShowFile(ctx context.Context, dir, rev, path string) ([]byte, error)
	Changed(ctx context.Context, dir string, paths ...string) (bool, error)
	CommitAndPush(ctx context.Context, dir string, opts vcs.CommitOptions) error
}

// Cargo is the subset of *cargo.Runner the engine drives.
type Cargo interface {
	PrepareToolchain(ctx context.Context, dir string) error
	Check(ctx context.Context, dir, manifestPath string) error
}

// PullRequests is the subset of *github.Client the engine drives.
type PullRequests interface {
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
	UpsertPullRequest(ctx context.Context, spec gh.PullRequestSpec) (*gh.PullRequest, error)
	DeleteBranch(ctx context.Context, owner, repo, branch string) (bool, error)
	EnableAutoMerge(ctx context.Context, nodeID string, method gh.MergeMethod) error
}
