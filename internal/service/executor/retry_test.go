package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Delay: time.Millisecond}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(5), "op", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, entity.NewTransportError(errors.New("connection reset"))
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustionWrapsFirstError(t *testing.T) {
	firstErr := entity.NewTransportError(errors.New("dial tcp: timeout"))
	calls := 0

	_, err := Retry(context.Background(), fastPolicy(3), "op", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, firstErr
		}
		return 0, entity.NewTransportError(errors.New("some other failure"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, firstErr)
}

func TestRetryDefaultAttemptBudget(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{Delay: time.Millisecond}, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, entity.NewTransportError(errors.New("unavailable"))
	})

	require.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, defaultRetryAttempts, calls)
}

func TestRetryFirstFailureLoggedOnce(t *testing.T) {
	hook := logrustest.NewGlobal()
	defer hook.Reset()

	_, err := Retry(context.Background(), fastPolicy(4), "op", func(ctx context.Context) (int, error) {
		return 0, entity.NewTransportError(errors.New("boom"))
	})
	require.ErrorIs(t, err, ErrRetryExhausted)

	detailed := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			if _, ok := e.Data[logrus.ErrorKey]; ok {
				detailed++
			}
		}
	}
	assert.Equal(t, 1, detailed, "only the first failure carries the error detail")
}

func TestRetryPermanentErrorAbortsImmediately(t *testing.T) {
	cause := errors.New("step size unparseable")
	calls := 0

	_, err := Retry(context.Background(), fastPolicy(10), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(cause)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRetryExhausted)
}

func TestRetryRejectionAbortsImmediately(t *testing.T) {
	calls := 0
	rejection := entity.NewExchangeError(entity.ExchangeErrorRejected, -2010, "insufficient balance")

	_, err := Retry(context.Background(), fastPolicy(10), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, rejection
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, rejection)
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastPolicy(10), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, entity.NewTransportError(errors.New("unavailable"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryTimeoutCeiling(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 100, Delay: 50 * time.Millisecond, Timeout: 10 * time.Millisecond}

	_, err := Retry(context.Background(), policy, "op", func(ctx context.Context) (int, error) {
		return 0, entity.NewTransportError(errors.New("unavailable"))
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
