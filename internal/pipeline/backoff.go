package pipeline

import (
	"context"
	"errors"
	"time"
)

// Backoff returns the delay before retry attempt n (0 based).
type Backoff func(n int) time.Duration

// ExponentialBackoff doubles base per attempt, capped at limit.
func ExponentialBackoff(base, limit time.Duration) Backoff {
	return func(n int) time.Duration {
		d := base
		for i := 0; i < n && d < limit; i++ {
			d *= 2
		}
		return min(d, limit)
	}
}

// withJitter spreads d uniformly over d*(1-jitter) .. d*(1+jitter).
// u is a uniform sample from [0, 1).
func withJitter(d time.Duration, jitter, u float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 + jitter*(2*u-1)))
}

// retryable keeps retrying unless the error says otherwise or the caller
// is gone.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// retryAfter is the server requested wait carried by err, if any.
func retryAfter(err error) time.Duration {
	var r interface{ RetryAfter() time.Duration }
	if errors.As(err, &r) {
		return r.RetryAfter()
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
