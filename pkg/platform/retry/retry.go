// Package retry runs an operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how an operation is retried.
type Policy struct {
	MaxAttempts int           // total attempts including the first; <= 1 disables retry
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap for any single delay
	// Retryable decides whether a failed attempt may be retried. Nil retries everything.
	Retryable func(error) bool
}

// DefaultPolicy mirrors the SMS gateway defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// ErrExhausted wraps the last error once all attempts have failed.
var ErrExhausted = errors.New("retry attempts exhausted")

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.MaxInterval = p.MaxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Do runs op until it succeeds, returns a non-retryable error, the policy is
// exhausted, or ctx is done. attempt is 1-based.
func Do(ctx context.Context, p Policy, logger *slog.Logger, op func(ctx context.Context, attempt int) error) error {
	attempt := 0
	var last error
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		last = err
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, delay time.Duration) {
		if logger != nil {
			logger.WarnContext(ctx, "attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", p.MaxAttempts,
				"delay_ms", delay.Milliseconds(),
				"error", err,
			)
		}
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if p.Retryable != nil && !p.Retryable(last) {
		return last
	}
	return errors.Join(ErrExhausted, last)
}
