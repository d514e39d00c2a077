// Package transform hands formatted page content to a downstream
// transformation service and classifies its failures for backoff.
package transform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/docharvest/internal/retry"
)

// Transformer turns page content into its final form.
type Transformer interface {
	Transform(ctx context.Context, text, sourceURL string) (string, error)
}

// Passthrough returns its input unchanged.
type Passthrough struct{}

func (Passthrough) Transform(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

// Kind classifies a transformation failure.
type Kind string

const (
	KindThrottled     Kind = "throttled"
	KindPoolExhausted Kind = "pool_exhausted"
	KindOther         Kind = "other"
)

// Error is a classified transformation failure.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transform: %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("transform: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrEmptyOutput is returned when the service answers with no content.
var ErrEmptyOutput = errors.New("transform: empty output")

var (
	poolKeywords = []string{
		"connection pool", "pool is full", "connection limit",
		"too many connections", "connection timeout", "connection refused",
	}
	throttleKeywords = []string{
		"throttling", "rate limit", "too many requests", "service unavailable",
	}
)

// Classify returns the Kind carried by err, falling back to keyword matching
// on its message.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	var te *Error
	if errors.As(err, &te) && te.Kind != KindOther && te.Kind != "" {
		return te.Kind
	}
	msg := strings.ToLower(err.Error())
	for _, k := range poolKeywords {
		if strings.Contains(msg, k) {
			return KindPoolExhausted
		}
	}
	for _, k := range throttleKeywords {
		if strings.Contains(msg, k) {
			return KindThrottled
		}
	}
	return KindOther
}

// Backoff returns the classified delay schedule for attempt a:
//
//	pool exhausted  base*2^a + 0.1s*a
//	throttled       base*3^a + 0.5s*a
//	other           base*1.5^a
func Backoff(base time.Duration) retry.DelayFunc {
	return func(attempt int, err error) time.Duration {
		a := float64(attempt)
		switch Classify(err) {
		case KindPoolExhausted:
			return scale(base, math.Pow(2, a)) + time.Duration(a*float64(100*time.Millisecond))
		case KindThrottled:
			return scale(base, math.Pow(3, a)) + time.Duration(a*float64(500*time.Millisecond))
		default:
			return scale(base, math.Pow(1.5, a))
		}
	}
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}
