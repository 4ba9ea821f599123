package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or the
	// context is done
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// TokenBucket implements a token bucket rate limiter. Tokens refill
// continuously at rate/period rather than all at once, so a steady consumer
// is spaced evenly instead of bursting at every refill boundary.
type TokenBucket struct {
	rate       int           // Tokens added per period
	period     time.Duration // Refill period
	burst      int           // Maximum number of tokens
	tokens     float64       // Current number of tokens
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a token bucket that allows rate requests per period
// with the given burst capacity
func NewTokenBucket(rate int, period time.Duration, burst int) *TokenBucket {
	if burst <= 0 {
		burst = rate
	}
	return &TokenBucket{
		rate:       rate,
		period:     period,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}

	return false
}

// Wait blocks until a token is available or ctx is done
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		tb.mu.Lock()
		// Time until one full token accumulates at the current rate.
		interval := tb.period / time.Duration(tb.rate)
		tb.mu.Unlock()
		if interval <= 0 {
			interval = 10 * time.Millisecond
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset restores the bucket to full burst capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = float64(tb.burst)
	tb.lastRefill = time.Now()
}

// refill adds tokens based on elapsed time; callers hold the lock
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	tb.tokens += float64(tb.rate) * float64(elapsed) / float64(tb.period)
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}
	tb.lastRefill = now
}
