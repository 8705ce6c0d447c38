package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"locksync/internal/lockfile"
	"locksync/internal/target"
)

// SyncFunc syncs one target. It reports failure on the result rather than
// returning an error.
type SyncFunc func(ctx context.Context, t target.Target, art *lockfile.Artifact, rev lockfile.Revision) TargetResult

type Scheduler struct {
	sync        SyncFunc
	concurrency int
}

func NewScheduler(fn SyncFunc, concurrency int) (*Scheduler, error) {
	if fn == nil {
		return nil, errors.New("sync func is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{sync: fn, concurrency: concurrency}, nil
}

// Execute fans the targets out and streams their results.
//
// Channel semantics:
//   - Exactly one TargetResult is sent per target, in completion order, even
//     when ctx is canceled (later targets then fail at checkout).
//   - A failing target never cancels its siblings.
//   - onStart, when non-nil, is called from the worker before each sync.
//   - The channel is closed once every target has reported.
func (s *Scheduler) Execute(ctx context.Context, targets []target.Target, art *lockfile.Artifact, rev lockfile.Revision, onStart func(target.Target)) <-chan TargetResult {
	resultsCh := make(chan TargetResult)

	go func() {
		defer close(resultsCh)

		// Workers never return an error; no sibling is ever canceled.
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, t := range targets {
			g.Go(func() error {
				if onStart != nil {
					onStart(t)
				}
				resultsCh <- s.sync(ctx, t, art, rev)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return resultsCh
}
