package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithExponentialBackoff(t *testing.T) {
	t.Run("succeeds on first attempt", func(t *testing.T) {
		calls := 0
		result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
			calls++
			return nil
		})

		assert.True(t, result.Success)
		assert.Equal(t, 1, result.Attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries until success within cap", func(t *testing.T) {
		calls := 0
		result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		})

		assert.True(t, result.Success)
		assert.Equal(t, 3, result.Attempts)
	})

	t.Run("exhausts attempts and reports last error", func(t *testing.T) {
		boom := errors.New("boom")
		result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
			return boom
		})

		assert.False(t, result.Success)
		assert.Equal(t, 3, result.Attempts)
		assert.ErrorIs(t, result.LastError, boom)
	})

	t.Run("stops immediately on non-retryable error", func(t *testing.T) {
		permanent := errors.New("permanent")
		cfg := fastConfig()
		cfg.RetryIf = func(err error) bool { return !errors.Is(err, permanent) }

		calls := 0
		result := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
			calls++
			return permanent
		})

		assert.False(t, result.Success)
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, result.LastError, permanent)
	})

	t.Run("aborts when context is cancelled during backoff", func(t *testing.T) {
		cfg := fastConfig()
		cfg.InitialDelay = time.Second

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		result := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
			return errors.New("flaky")
		})

		assert.False(t, result.Success)
		assert.ErrorIs(t, result.LastError, context.Canceled)
	})
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(cfg, 3))
	assert.Equal(t, time.Second, calculateDelay(cfg, 10), "delay is capped at MaxDelay")
}

func TestWithRetry(t *testing.T) {
	err := WithRetry(context.Background(), func(ctx context.Context, attempt int) error {
		return nil
	})
	require.NoError(t, err)
}
