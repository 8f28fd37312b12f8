package internal

import (
	"context"
	"time"
)

// RetryPolicy bounds a blocking operation with a per-attempt timeout and a
// small number of retries.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
}

// DefaultRetryPolicy matches DefaultConfig().Retry.
func DefaultRetryPolicy() RetryPolicy {
	return DefaultConfig().RetryPolicy()
}

// Do runs fn until it succeeds, the attempts run out, or retryable rejects
// the error. Each attempt gets its own timeout context derived from ctx.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, retryable func(error) bool) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 && p.Backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Backoff * time.Duration(i)):
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err = fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if retryable == nil || !retryable(err) {
			return err
		}
		LogDebug("Retrying after error (attempt %d/%d): %v", i+1, attempts, err)
	}
	return err
}

// RetryTransient retries timeouts and SQLite lock contention.
func RetryTransient(err error) bool {
	return IsTimeout(err) || IsBusy(err)
}
