package tuyalan

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy configures the exponential-backoff executor described in
// spec §4.4.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Factor          float64
	RetryableErrors []error
}

// Preset retry policies from spec §4.4.
var (
	RetryNone = RetryPolicy{
		MaxAttempts: 1,
	}
	RetryQuick = RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		Factor:          1.5,
		RetryableErrors: RetryableErrors,
	}
	RetryStandard = RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    time.Second,
		MaxDelay:        10 * time.Second,
		Factor:          2,
		RetryableErrors: RetryableErrors,
	}
	RetryAggressive = RetryPolicy{
		MaxAttempts:     5,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		Factor:          2,
		RetryableErrors: RetryableErrors,
	}
)

// isRetryable reports whether err matches one of p's retryable error
// kinds via errors.Is.
func (p RetryPolicy) isRetryable(err error) bool {
	for _, kind := range p.RetryableErrors {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// delayForAttempt computes the backoff before retry attempt n (1-based:
// the sleep before the second attempt is delayForAttempt(1)).
func (p RetryPolicy) delayForAttempt(n int) time.Duration {
	d := float64(p.InitialDelay) * pow(p.Factor, float64(n-1))
	if max := float64(p.MaxDelay); d > max && max > 0 {
		d = max
	}
	return time.Duration(d)
}

func pow(base, exp float64) float64 {
	result := 1.0
	// exp is always a small non-negative integer count of attempts here;
	// a loop avoids pulling in math.Pow for a handful of iterations.
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

// Do executes op, retrying per the policy on retryable errors until
// MaxAttempts is exhausted or ctx is cancelled. Non-retryable errors and
// ctx cancellation propagate immediately.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.isRetryable(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxAttempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delayForAttempt(attempt)):
		}
	}
	return lastErr
}
