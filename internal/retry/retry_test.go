package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDo_ExhaustsExactlyMaxRetriesPlusOne(t *testing.T) {
	t.Parallel()
	for _, maxRetries := range []int{0, 1, 2, 5} {
		calls := 0
		boom := errors.New("boom")
		err := Do(context.Background(), Policy{MaxRetries: maxRetries, Delay: Fixed(2 * time.Second), Sleep: noSleep},
			func(ctx context.Context, attempt int) error {
				assert.Equal(t, calls, attempt)
				calls++
				return boom
			})
		require.Error(t, err)
		assert.Equal(t, maxRetries+1, calls)

		var ex *ExhaustedError
		require.ErrorAs(t, err, &ex)
		assert.Equal(t, maxRetries+1, ex.Attempts)
		assert.ErrorIs(t, err, boom)
	}
}

func TestDo_StopsOnSuccess(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 4, Sleep: noSleep}, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	calls := 0
	bad := errors.New("bad request")
	err := Do(context.Background(), Policy{MaxRetries: 3, Sleep: noSleep}, func(ctx context.Context, attempt int) error {
		calls++
		return Permanent(bad)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, bad, err)
}

func TestDo_DelaysAreReported(t *testing.T) {
	t.Parallel()
	var slept []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	_ = Do(context.Background(), Policy{MaxRetries: 3, Delay: Exponential(time.Second, 2, 3*time.Second), Sleep: sleep},
		func(ctx context.Context, attempt int) error { return errors.New("x") })
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, slept)
}

func TestDo_CancelledDuringPause(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, Policy{MaxRetries: 5, Delay: Fixed(time.Hour)}, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("x")
	})
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 1, calls)
}
