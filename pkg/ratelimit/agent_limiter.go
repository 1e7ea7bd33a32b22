// Package ratelimit provides rate limiting for outbound API calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token-bucket rate limiter. It smooths bursty batches so
// the completion provider's per-minute quota is never blown through at
// cycle start.
type Limiter struct {
	mu       sync.Mutex
	tokens   float64
	burst    float64
	rate     float64 // tokens per second
	lastFill time.Time
}

// NewLimiter creates a limiter allowing rps requests per second with the
// given burst. Non-positive values fall back to 5 rps / burst 5.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 5
	}
	return &Limiter{
		tokens:   float64(burst),
		burst:    float64(burst),
		rate:     rps,
		lastFill: time.Now(),
	}
}

// Allow reports whether a request may proceed right now, consuming a
// token when it does.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(time.Now())
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// Wait blocks until a token is available or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.refill(now)
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill must be called with the lock held.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastFill = now
}
