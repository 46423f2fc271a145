// Package backoff wraps remote calls with capped exponential retries.
//
// It is the only resilience primitive in the system: every outbound call
// to a feed source or an authenticated endpoint goes through Do.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Config controls how an operation is retried.
type Config struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the first retry; each subsequent wait
	// doubles, capped at MaxDelay. No jitter is added.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultConfig matches the spacing used for feed fetches.
var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    10 * time.Second,
}

// Do invokes fn until it succeeds or MaxAttempts is exhausted, sleeping
// min(BaseDelay*2^attempt, MaxDelay) between attempts. The error from the
// final attempt is returned verbatim.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("backoff: max attempts must be at least 1, got %d", cfg.MaxAttempts)
	}

	b := retry.NewExponential(cfg.BaseDelay)
	if cfg.MaxDelay > 0 {
		b = retry.WithCappedDuration(cfg.MaxDelay, b)
	}
	b = retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		pErr := &permanentError{}
		if errors.As(err, &pErr) {
			return pErr.err
		}

		// Everything else is retryable; go-retry unwraps this before
		// handing the last error back.
		return retry.RetryableError(err)
	})
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks an error that no retry can fix, such as a rejected
// request. Do returns it immediately, unwrapped.
func Permanent(err error) error {
	return &permanentError{err: err}
}
