// Copyright 2025 Joseph Cumines
//
// Token bucket rate limiting of MCP tool calls

package transport

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter limits tool calls to a steady rate with a burst of twice that
// rate. A nil *RateLimiter allows everything.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter returns a limiter for requestsPerSecond, or nil if it is not
// positive.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	burst := max(int(requestsPerSecond*2), 1)
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Allow consumes a token if one is available now.
func (r *RateLimiter) Allow() bool {
	return r.AllowAt(time.Now())
}

// AllowAt is Allow at an explicit time.
func (r *RateLimiter) AllowAt(t time.Time) bool {
	if r == nil {
		return true
	}
	return r.limiter.AllowN(t, 1)
}

// Burst is the bucket capacity; 0 when disabled.
func (r *RateLimiter) Burst() int {
	if r == nil {
		return 0
	}
	return r.limiter.Burst()
}
