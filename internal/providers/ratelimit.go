package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter provides token bucket rate limiting for API calls.
type RateLimiter struct {
	mu            sync.Mutex
	tokens        float64
	maxTokens     float64
	refillRate    float64 // tokens per second
	lastRefill    time.Time
	requestTokens float64 // tokens consumed per request
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	maxTokens := float64(config.BurstSize)
	if maxTokens == 0 {
		maxTokens = float64(config.RequestsPerMinute)
	}

	refillRate := float64(config.RequestsPerMinute) / 60.0

	return &RateLimiter{
		tokens:        maxTokens,
		maxTokens:     maxTokens,
		refillRate:    refillRate,
		lastRefill:    time.Now(),
		requestTokens: 1.0,
	}
}

// Wait blocks until a token is available or context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		if r.tokens >= r.requestTokens {
			r.tokens -= r.requestTokens
			r.mu.Unlock()
			return nil
		}

		tokensNeeded := r.requestTokens - r.tokens
		waitTime := time.Duration(tokensNeeded/r.refillRate*1000) * time.Millisecond
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			// Try again after refill
		}
	}
}

// TryAcquire attempts to acquire a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= r.requestTokens {
		r.tokens -= r.requestTokens
		return true
	}

	return false
}

// refill adds tokens based on elapsed time (must be called with lock held).
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now

	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
}
