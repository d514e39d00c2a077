// Package limiter holds the shared throttles of a harvesting run: a sliding
// window over request starts, a counting gate for transformation calls and
// per-host pacing for spec candidate fetches.
package limiter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Clock abstracts time so window behaviour can be driven synthetically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Window admits at most Limit acquisitions in any trailing Period.
type Window struct {
	limit  int
	period time.Duration
	clock  Clock

	mu     sync.Mutex
	stamps []time.Time
}

// NewWindow returns a window admitting limit acquisitions per period. A nil
// clock means the wall clock.
func NewWindow(limit int, period time.Duration, clock Clock) (*Window, error) {
	if limit <= 0 {
		return nil, errors.New("limiter: window limit must be positive")
	}
	if period <= 0 {
		return nil, errors.New("limiter: window period must be positive")
	}
	if clock == nil {
		clock = RealClock
	}
	return &Window{limit: limit, period: period, clock: clock}, nil
}

// Acquire blocks until a slot is free in the trailing window, then records the
// acquisition. It returns ctx.Err() if the context ends first.
func (w *Window) Acquire(ctx context.Context) error {
	for {
		wait, ok := w.tryAcquire()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(wait):
		}
	}
}

func (w *Window) tryAcquire() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)
	if len(w.stamps) < w.limit {
		w.stamps = append(w.stamps, now)
		return 0, true
	}
	wait := w.stamps[0].Add(w.period).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// prune drops stamps that left the window. Caller holds mu.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.period)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	w.stamps = w.stamps[i:]
}

// InWindow reports how many acquisitions fall inside the trailing window.
func (w *Window) InWindow() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.clock.Now())
	return len(w.stamps)
}
