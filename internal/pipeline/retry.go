package pipeline

import (
	"context"
	"time"
)

// RetryPolicy bounds how often and how patiently a stage is retried.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy is three attempts with 1s then 2s between them, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

func (p RetryPolicy) normalize() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Delay returns the wait after failed attempt k (1-based): min(base*2^(k-1), max).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retry runs op until it succeeds, returns a permanent error, or the policy
// is exhausted. It reports the number of attempts made and the last error.
func retry(ctx context.Context, policy RetryPolicy, sleep sleepFunc, permanent func(error) bool, op func(attempt int) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if permanent != nil && permanent(lastErr) {
			return attempt, lastErr
		}
		if attempt == policy.Attempts {
			break
		}
		if err := sleep(ctx, policy.Delay(attempt)); err != nil {
			return attempt, err
		}
	}
	return policy.Attempts, lastErr
}
