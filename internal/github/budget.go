package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RequestBudget tracks the GitHub rate limit across all concurrent target
// syncs. Requests block while the budget is exhausted or a Retry-After
// cooldown is active; every response refreshes the state.
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	cooldown  time.Time
	probed    bool
	now       func() time.Time
	notifyCh  chan struct{}
}

func NewRequestBudget() *RequestBudget {
	return &RequestBudget{
		remaining: 5000,
		reset:     time.Now().Add(time.Hour),
		now:       time.Now,
		notifyCh:  make(chan struct{}),
	}
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

func (b *RequestBudget) Acquire(ctx context.Context, n int) error {
	if ctx == nil {
		return fmt.Errorf("Acquire: nil context")
	}
	if n <= 0 {
		return fmt.Errorf("Acquire: n must be > 0 (got %d)", n)
	}
	if b == nil || b.now == nil || b.notifyCh == nil {
		return fmt.Errorf("Acquire: RequestBudget is not initialized (use NewRequestBudget)")
	}
	for i := 0; i < n; i++ {
		if err := b.acquireOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *RequestBudget) acquireOne(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		ch := b.notifyCh

		var until time.Time
		switch {
		case now.Before(b.cooldown):
			until = b.cooldown
		case b.remaining > 0:
			b.remaining--
			b.mu.Unlock()
			return nil
		case !now.Before(b.reset) && !b.probed:
			// The window has reset but no response has confirmed it yet:
			// let exactly one request through to refresh the numbers.
			b.probed = true
			b.mu.Unlock()
			return nil
		case !now.Before(b.reset):
			// Probe in flight; wait for UpdateFromResponse.
		default:
			until = b.reset
		}
		b.mu.Unlock()

		if err := wait(ctx, ch, until, now); err != nil {
			return err
		}
	}
}

// wait blocks until ctx ends, ch is closed, or until passes. A zero until
// waits on ctx and ch only.
func wait(ctx context.Context, ch <-chan struct{}, until, now time.Time) error {
	var timeout <-chan time.Time
	if !until.IsZero() {
		d := until.Sub(now)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	case <-timeout:
		return nil
	}
}

// UpdateFromResponse applies Retry-After and X-RateLimit-* headers and wakes
// blocked requests when anything changed.
func (b *RequestBudget) UpdateFromResponse(resp *http.Response) {
	if resp == nil || b == nil || b.now == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Any response ends the post-reset request, with or without headers.
	changed := b.probed
	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		if until := b.now().Add(time.Duration(seconds) * time.Second); until.After(b.cooldown) {
			b.cooldown = until
			changed = true
		}
	}
	if val, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining")); err == nil && val >= 0 && val != b.remaining {
		b.remaining = val
		changed = true
	}
	if val, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil && val > 0 {
		if reset := time.Unix(val, 0); !b.reset.Equal(reset) {
			b.reset = reset
			changed = true
		}
	}

	if changed {
		b.probed = false
		b.notifyLocked()
	}
}

// RequestFailed releases the post-reset slot after a request that got no
// response, so the next waiter refreshes the numbers instead of blocking until
// its deadline.
func (b *RequestBudget) RequestFailed() {
	if b == nil || b.notifyCh == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.probed {
		return
	}
	b.probed = false
	b.notifyLocked()
}

func (b *RequestBudget) notifyLocked() {
	close(b.notifyCh)
	b.notifyCh = make(chan struct{})
}
