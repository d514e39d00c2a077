package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of concurrent holders.
type Gate struct {
	sem   *semaphore.Weighted
	size  int64
	inUse atomic.Int64
}

// NewGate returns a gate with n permits. n below one is treated as one.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n)), size: int64(n)}
}

// Acquire blocks for a permit or until ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inUse.Add(1)
	return nil
}

// Release returns a permit taken by Acquire.
func (g *Gate) Release() {
	g.inUse.Add(-1)
	g.sem.Release(1)
}

// InUse reports the number of permits currently held.
func (g *Gate) InUse() int { return int(g.inUse.Load()) }

// Size reports the number of permits.
func (g *Gate) Size() int { return int(g.size) }

// Do runs fn while holding a permit.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}
