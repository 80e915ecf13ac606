package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoVal(t *testing.T) {
	t.Parallel()

	t.Run("returns value on first success", func(t *testing.T) {
		t.Parallel()
		calls := 0
		got, err := DoVal(context.Background(), fastRetryConfig(2), func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient errors once", func(t *testing.T) {
		t.Parallel()
		calls := 0
		got, err := DoVal(context.Background(), fastRetryConfig(2), func(ctx context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, NewExternalServiceError(KindRateLimited, errors.New("429"))
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := DoVal(context.Background(), fastRetryConfig(2), func(ctx context.Context) (int, error) {
			calls++
			return 0, NewExternalServiceError(KindTimeout, errors.New("deadline"))
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)

		var se *ExternalServiceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, KindTimeout, se.Kind)
	})

	t.Run("does not retry fatal errors", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (int, error) {
			calls++
			return 0, NewValidationError("bad input")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := DoVal(ctx, fastRetryConfig(5), func(ctx context.Context) (int, error) {
			calls++
			cancel()
			return 0, NewExternalServiceError(KindTimeout, errors.New("deadline"))
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("invokes OnRetry callback", func(t *testing.T) {
		t.Parallel()
		cfg := fastRetryConfig(3)
		var attempts []int
		cfg.OnRetry = func(attempt int, err error) {
			attempts = append(attempts, attempt)
		}
		_, _ = DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
			return 0, NewExternalServiceError(KindRateLimited, errors.New("429"))
		})
		assert.Equal(t, []int{1, 2}, attempts)
	})
}
