package helpers

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy is a bounded exponential backoff with jitter. It exists so the
// settlement, refund and ledger paths share one conflict-retry behaviour
// instead of each growing its own.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another attempt. Business
	// errors must return false here so they surface immediately.
	Retryable func(error) bool
}

func DefaultRetryPolicy(retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 50 * time.Millisecond,
		Retryable: retryable,
	}
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted, or ctx is done. The delay before attempt n is
// base*2^(n-1) plus up to 50% jitter.
func (p RetryPolicy) WithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt == p.Attempts {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
