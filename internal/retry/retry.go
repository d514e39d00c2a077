// Package retry runs fallible stage work a bounded number of times with a
// pluggable delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// DelayFunc returns the pause before the next attempt. attempt is zero-based
// and refers to the attempt that just failed with err.
type DelayFunc func(attempt int, err error) time.Duration

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures Do.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// Delay computes the pause between attempts. Nil means no pause.
	Delay DelayFunc
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep SleepFunc
	// OnRetry is called before each pause.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Fixed pauses for d between every attempt.
func Fixed(d time.Duration) DelayFunc {
	return func(int, error) time.Duration { return d }
}

// Exponential pauses base*factor^attempt, capped at max when max > 0.
func Exponential(base time.Duration, factor float64, max time.Duration) DelayFunc {
	return func(attempt int, _ error) time.Duration {
		d := time.Duration(float64(base) * math.Pow(factor, float64(attempt)))
		if max > 0 && (d > max || d < 0) {
			return max
		}
		return d
	}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; Do returns it unwrapped at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do calls fn until it succeeds, returns a permanent error, or MaxRetries+1
// attempts have been made. Cancelling ctx stops waiting between attempts.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		var d time.Duration
		if p.Delay != nil {
			d = p.Delay(attempt, err)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, d)
		}
		if err := sleep(ctx, d); err != nil {
			return &ExhaustedError{Attempts: attempt + 1, Err: lastErr}
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// Sleep waits for d, returning early with ctx.Err() when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
