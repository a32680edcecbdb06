// Package retry runs reads against flaky backends with capped exponential
// backoff and a per-attempt timeout.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy configures a Retrier. The delay after attempt n (0-based) is
// BaseDelay * 2^n; nothing sleeps after the last attempt.
type Policy struct {
	Attempts       int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

// defaultPolicy is 3 attempts with 1s and 2s between them, 5s per attempt.
var defaultPolicy = Policy{
	Attempts:       3,
	BaseDelay:      time.Second,
	AttemptTimeout: 5 * time.Second,
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retrier is safe for concurrent use. The reporter, if any, is shared by
// every call made through this Retrier.
type Retrier struct {
	policy   Policy
	reporter *Reporter
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(policy Policy, reporter *Reporter) *Retrier {
	if policy.Attempts < 1 {
		policy = defaultPolicy
	}
	return &Retrier{
		policy:   policy,
		reporter: reporter,
		sleep:    sleepContext,
	}
}

// Do calls fn until it succeeds, returns a Permanent error, the parent
// context ends, or the attempts run out. The final error is reported under key.
func (r *Retrier) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.policy.Attempts; attempt++ {
		lastErr = r.attempt(ctx, fn)
		if lastErr == nil {
			return nil
		}

		var perm permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == r.policy.Attempts-1 {
			break
		}

		delay := r.policy.BaseDelay << attempt
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	err := fmt.Errorf("%s: failed after %d attempts: %w", key, r.policy.Attempts, lastErr)
	r.reporter.Report(key, err)
	return err
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.policy.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

// Value is Do for functions that return a result.
func Value[T any](ctx context.Context, r *Retrier, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, key, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
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
