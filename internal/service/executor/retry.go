package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts = 20
	defaultRetryDelay    = 1 * time.Second
)

// ErrRetryExhausted is returned when the bounded retry budget runs out. It
// wraps the first underlying failure.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

type RetryPolicy struct {
	// MaxAttempts is the bounded attempt budget. Defaults to 20.
	MaxAttempts int
	// Delay is the fixed pause between attempts. Defaults to 1s.
	Delay time.Duration
	// Timeout is an optional wall-clock ceiling over all attempts. Zero
	// disables it.
	Timeout time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultRetryAttempts
	}
	if p.Delay <= 0 {
		p.Delay = defaultRetryDelay
	}
	return p
}

type permanentError struct {
	err error
}

// Permanent marks an error as non-retryable regardless of its kind.
func Permanent(err error) error {
	return &permanentError{err: err}
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

func retryable(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	return entity.IsRetryable(err)
}

// Retry executes op up to the policy's attempt budget with a fixed
// inter-attempt delay. The first failure is logged in detail, subsequent
// failures tersely. Non-retryable errors abort immediately and are returned
// as-is. Exhaustion returns ErrRetryExhausted wrapping the first failure;
// callers must check for it with errors.Is.
func Retry[T any](ctx context.Context, policy RetryPolicy, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	policy = policy.withDefaults()

	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	var firstErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if !retryable(err) {
			logrus.WithError(err).Errorf("%s failed with non-retryable error", name)
			return zero, err
		}

		if firstErr == nil {
			firstErr = err
			logrus.WithError(err).Warnf("%s failed, retrying", name)
		} else {
			logrus.Warnf("%s still failing (attempt %d/%d)", name, attempt, policy.MaxAttempts)
		}

		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-time.After(policy.Delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("%s: %w: %w", name, ErrRetryExhausted, firstErr)
}
