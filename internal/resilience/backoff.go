// Package resilience provides backoff schedules and error classification
// for calls to external services.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff is an exponential delay schedule.
type Backoff struct {
	// Initial is the delay before the first backoff retry. Default: 1s.
	Initial time.Duration

	// Max caps any single delay. Default: 30s.
	Max time.Duration

	// Multiplier scales the delay after each retry. Default: 2.0.
	Multiplier float64

	// JitterFraction adds random jitter as a fraction of the computed delay
	// (0.0 = none, 0.25 = ±25%).
	JitterFraction float64
}

// DefaultBackoff returns the schedule used between fallback attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
	}
}

// FromConfig converts config values to a Backoff, keeping defaults for
// non-positive inputs.
func FromConfig(initialMs, maxMs int, multiplier, jitterFraction float64) Backoff {
	b := DefaultBackoff()
	if initialMs > 0 {
		b.Initial = time.Duration(initialMs) * time.Millisecond
	}
	if maxMs > 0 {
		b.Max = time.Duration(maxMs) * time.Millisecond
	}
	if multiplier > 0 {
		b.Multiplier = multiplier
	}
	if jitterFraction > 0 {
		b.JitterFraction = jitterFraction
	}
	return b
}

// Delay returns the wait before backoff retry n (0-based):
// Initial * Multiplier^n, capped at Max, with jitter applied.
func (b Backoff) Delay(n int) time.Duration {
	b = b.withDefaults()
	if n < 0 {
		n = 0
	}
	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(n))
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.JitterFraction > 0 {
		jitterRange := delay * b.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange // [-jitterRange, +jitterRange]
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func (b Backoff) withDefaults() Backoff {
	if b.Initial <= 0 {
		b.Initial = time.Second
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	if b.Multiplier <= 0 {
		b.Multiplier = 2.0
	}
	if b.JitterFraction < 0 {
		b.JitterFraction = 0
	}
	return b
}

// Sleep waits for d or until ctx is done, whichever comes first.
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

// Do runs fn up to attempts times, sleeping on b between transient
// failures. Non-transient errors and context cancellation stop immediately.
func Do(ctx context.Context, attempts int, b Backoff, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !IsTransient(lastErr) {
			return lastErr
		}
		if attempt >= attempts-1 {
			break
		}
		if err := Sleep(ctx, b.Delay(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// RetryLogger returns a callback that logs each retry attempt.
func RetryLogger(service, operation string) func(attempt int, model string, err error) {
	return func(attempt int, model string, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("model", model),
			zap.Error(err),
		)
	}
}
