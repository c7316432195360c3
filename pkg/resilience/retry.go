package resilience

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy defines retry behavior for transient failures, used by the
// finance client for flaky dashboard API calls.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Permanent marks an error as not worth retrying (4xx responses, bad
// input). Do returns it immediately, unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Do runs fn until it succeeds, retries are exhausted, ctx is cancelled, or
// fn returns a Permanent error. Backoff grows linearly per attempt.
func (r RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(); err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if i == r.MaxRetries {
			return err
		}
		select {
		case <-time.After(r.Backoff * time.Duration(i+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
