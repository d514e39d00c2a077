package limiter

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly whenever a caller waits on it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNewWindow_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewWindow(0, time.Second, nil)
	assert.Error(t, err)
	_, err = NewWindow(1, 0, nil)
	assert.Error(t, err)
	w, err := NewWindow(1, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, RealClock, w.clock)
}

func TestWindow_NeverExceedsLimitInAnyTrailingPeriod(t *testing.T) {
	t.Parallel()
	const limit = 3
	period := 10 * time.Second
	clock := newFakeClock()
	w, err := NewWindow(limit, period, clock)
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(42))
	var starts []time.Time
	for i := 0; i < 60; i++ {
		if rnd.Intn(3) == 0 {
			clock.Advance(time.Duration(rnd.Intn(4000)) * time.Millisecond)
		}
		require.NoError(t, w.Acquire(context.Background()))
		starts = append(starts, clock.Now())
	}

	for i := limit; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-limit])
		assert.GreaterOrEqual(t, gap, period, "acquisitions %d and %d are %s apart", i-limit, i, gap)
	}
}

func TestWindow_BurstThenWait(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	start := clock.Now()
	w, err := NewWindow(2, time.Minute, clock)
	require.NoError(t, err)

	require.NoError(t, w.Acquire(context.Background()))
	require.NoError(t, w.Acquire(context.Background()))
	assert.Equal(t, start, clock.Now(), "first slots are immediate")
	assert.Equal(t, 2, w.InWindow())

	require.NoError(t, w.Acquire(context.Background()))
	assert.Equal(t, start.Add(time.Minute), clock.Now())
	assert.Equal(t, 1, w.InWindow())
}

func TestWindow_AcquireHonoursContext(t *testing.T) {
	t.Parallel()
	w, err := NewWindow(1, time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, w.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Acquire(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, w.InWindow())
}

func TestWindow_ConcurrentAcquirersShareTheLimit(t *testing.T) {
	t.Parallel()
	w, err := NewWindow(5, time.Hour, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Acquire(ctx) == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, granted)
}
