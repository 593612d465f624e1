package shopify

import (
	"context"
	"sync"
	"time"
)

// DefaultRequestsPerMinute is the limiter default, sized well under the
// admin API's cost budget so throttling stays the exception.
const DefaultRequestsPerMinute = 120

// RateLimiter is a token-bucket limiter applied before every admin API
// call. It keeps the pipeline inside the remote rate budget so the
// throttle-retry path is a backstop rather than the steady state.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	tokens            float64
	lastRefill        time.Time

	totalConsumed    int64
	totalWaited      time.Duration
	lastThrottleTime time.Time
}

// RateLimiterStatus is a point-in-time snapshot for the status endpoint.
type RateLimiterStatus struct {
	TokensAvailable  int           `json:"tokens_available"`
	TokensLimit      int           `json:"tokens_limit"`
	TotalConsumed    int64         `json:"total_consumed"`
	TotalWaited      time.Duration `json:"total_waited"`
	LastThrottleTime time.Time     `json:"last_throttle_time,omitempty"`
}

// NewRateLimiter creates a limiter refilling at requestsPerMinute.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		tokens:            float64(requestsPerMinute),
		lastRefill:        time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1.0 {
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		}
		wait := r.timeUntilToken()
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			r.mu.Lock()
			r.totalWaited += wait
			r.mu.Unlock()
		}
	}
}

// RecordThrottle is called when the remote API throttles a call anyway.
// The bucket is drained so subsequent calls pause locally instead of
// compounding the penalty.
func (r *RateLimiter) RecordThrottle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastThrottleTime = time.Now()
	r.tokens = 0
}

// Status returns the current limiter state.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()

	return RateLimiterStatus{
		TokensAvailable:  int(r.tokens),
		TokensLimit:      r.requestsPerMinute,
		TotalConsumed:    r.totalConsumed,
		TotalWaited:      r.totalWaited,
		LastThrottleTime: r.lastThrottleTime,
	}
}

// refill adds tokens for elapsed time. Caller holds the lock.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now

	r.tokens += elapsed * float64(r.requestsPerMinute) / 60.0
	if r.tokens > float64(r.requestsPerMinute) {
		r.tokens = float64(r.requestsPerMinute)
	}
}

// timeUntilToken estimates the wait for the next token. Caller holds the lock.
func (r *RateLimiter) timeUntilToken() time.Duration {
	needed := 1.0 - r.tokens
	rate := float64(r.requestsPerMinute) / 60.0
	return time.Duration(needed / rate * float64(time.Second))
}
