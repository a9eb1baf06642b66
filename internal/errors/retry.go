package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy controls retry behavior for transient failures.
type Policy struct {
	// MaxAttempts is the total number of tries including the first one.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// JitterFactor randomizes each delay by +/- this fraction.
	JitterFactor float64
}

// DefaultPolicy returns the retry policy used by the export pipeline.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
	}
}

// delay computes the backoff after the given failed attempt (1-based).
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.JitterFactor > 0 {
		jitter := (rand.Float64()*2 - 1) * p.JitterFactor * float64(d)
		d += time.Duration(jitter)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Notify is called before each backoff sleep with the failed attempt,
// its error and the planned delay.
type Notify func(attempt int, err error, delay time.Duration)

// Retry runs op, retrying transient failures with exponential backoff.
// Permanent failures and context cancellation return immediately. The last
// error is returned once MaxAttempts is exhausted.
func Retry(ctx context.Context, policy Policy, op func() error) error {
	return RetryNotify(ctx, policy, op, nil)
}

// RetryWithResult runs op with the same retry semantics as Retry and
// returns its result.
func RetryWithResult[T any](ctx context.Context, policy Policy, op func() (T, error)) (T, error) {
	var result T
	err := RetryNotify(ctx, policy, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, nil)
	return result, err
}

// RetryNotify is Retry with a callback invoked before each backoff sleep.
func RetryNotify(ctx context.Context, policy Policy, op func() error, notify Notify) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.delay(attempt)
		if notify != nil {
			notify(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("after %d attempts: %w", policy.MaxAttempts, lastErr)
}
