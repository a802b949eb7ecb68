package executor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy governs a handler's transport-failure retry behavior,
// adapted from the teacher's pkg/engine/retry_policy.go InternalRetryPolicy.
// Retry counts are fixed per spec §4.4/§9 open question (c) rather than
// document-configurable: LLMRetryPolicy allows one retry, HTTPRetryPolicy
// allows three, both exponential with HTTPRetryPolicy adding jitter.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       bool
}

// LLMRetryPolicy is one retry (two attempts total) with exponential delay.
func LLMRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 2, InitialDelay: time.Second, MaxDelay: 10 * time.Second}
}

// HTTPRetryPolicy is up to three retries (four attempts total) with
// jittered exponential delay; it only ever wraps network-level failures —
// callers must not retry an HTTP status >= 400 (spec §4.4).
func HTTPRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 4, InitialDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second, Jitter: true}
}

func (rp *RetryPolicy) delay(attempt int) time.Duration {
	mult := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(rp.InitialDelay) * mult)
	if d > rp.MaxDelay {
		d = rp.MaxDelay
	}
	if rp.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	return d
}

// Do runs fn, retrying on error up to MaxAttempts, honoring ctx
// cancellation between attempts.
func (rp *RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := rp.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rp.delay(attempt)):
		}
	}
	return fmt.Errorf("all %d attempt(s) failed: %w", attempts, lastErr)
}
