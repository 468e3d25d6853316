// Package ratelimit enforces the balance provider's request quota.
// A single limiter is shared by every concurrent fetch so the process as a
// whole never exceeds the provider's published rate.
package ratelimit

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond reflects the Etherscan free-tier quota.
const DefaultRequestsPerSecond = 5

// ErrAcquireCancelled is returned when the context is cancelled while
// waiting for a token.
var ErrAcquireCancelled = errors.New("context cancelled while waiting for rate limit token")

// Limiter grants at most N calls per rolling one-second window.
// The bucket holds a single token, so consecutive grants are spaced at
// least 1/N seconds apart; no alignment of idle periods and refills can
// squeeze more than N grants into any sliding second. Safe for concurrent
// use; waiting callers are served roughly FIFO by the underlying token
// bucket, so a caller behind a queue of depth d is granted a token within
// about d/N seconds.
type Limiter struct {
	limiter *rate.Limiter
}

// LimiterConfig holds configuration for the limiter.
type LimiterConfig struct {
	// RequestsPerSecond is the provider quota. Default: 5.
	RequestsPerSecond int
}

// Validate checks if the configuration is valid.
func (c *LimiterConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return errors.New("requests per second cannot be negative")
	}
	return nil
}

// NewLimiter creates a limiter with the given configuration.
// A nil config uses defaults.
func NewLimiter(cfg *LimiterConfig) (*Limiter, error) {
	if cfg == nil {
		cfg = &LimiterConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = DefaultRequestsPerSecond
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Acquire blocks until a token is available or the context is cancelled.
// It never fails for any other reason; quota pressure only delays callers.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return ErrAcquireCancelled
	}
	return nil
}

// Allow reports whether a call may proceed right now without waiting,
// consuming a token if so.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Limit returns the configured requests-per-second quota.
func (l *Limiter) Limit() float64 {
	return float64(l.limiter.Limit())
}
