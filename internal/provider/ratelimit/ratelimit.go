// Package ratelimit bounds outbound upstream calls with a sliding window:
// no more than limit calls depart in any trailing window duration.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow tracks the timestamps of the most recent calls and blocks
// callers until a slot frees. Callers never get a "try later" error from
// the limiter itself; they wait (or bail out via context).
//
// The mutex is held while waiting, so concurrent callers queue behind the
// oldest waiter and departures stay strictly bounded.
type SlidingWindow struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	calls []time.Time // oldest first, len <= limit

	// overridable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSlidingWindow creates a limiter allowing limit calls per window.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if limit <= 0 {
		limit = 1
	}
	return &SlidingWindow{
		limit:  limit,
		window: window,
		calls:  make([]time.Time, 0, limit),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Acquire blocks until the call may depart, then records its timestamp.
// Returns the context error if ctx is done before a slot frees.
func (w *SlidingWindow) Acquire(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.calls) == w.limit {
		elapsed := w.now().Sub(w.calls[0])
		if elapsed < w.window {
			if err := w.sleep(ctx, w.window-elapsed); err != nil {
				return err
			}
		}
		// Evict the oldest timestamp now that its window has passed.
		w.calls = w.calls[1:]
	}
	w.calls = append(w.calls, w.now())
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
