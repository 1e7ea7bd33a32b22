// Package resilience provides fault tolerance helpers for external
// service calls.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds a retry loop with exponential backoff.
type RetryConfig struct {
	MaxAttempts int           // total attempts, including the first (default: 3)
	BaseDelay   time.Duration // delay before the second attempt (default: 500ms)
	MaxDelay    time.Duration // backoff ceiling (default: 10s)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Retry runs fn until it succeeds, the attempt budget is exhausted, or the
// context is done. retryable decides whether a given error is worth
// another attempt; a nil retryable retries everything. Backoff doubles per
// attempt with full jitter.
func Retry(ctx context.Context, cfg RetryConfig, retryable func(error) bool, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}

	var err error
	delay := cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxAttempts {
			return err
		}
		if retryable != nil && !retryable(err) {
			return err
		}

		jittered := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
