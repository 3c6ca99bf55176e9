package clients

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter. The LLM client
// (OpenRouterClient) owns one, configured with its own
// requests-per-second budget; the other clients do not rate-limit.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerSecond float64
	tokens            float64
	lastUpdate        time.Time

	totalConsumed int64
	totalWaited    time.Duration
	last429Time    time.Time
}

// NewRateLimiter creates a limiter with the given requests-per-second
// budget. rps <= 0 defaults to 150 (spec's default LLM RPS).
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = 150
	}
	return &RateLimiter{
		requestsPerSecond: rps,
		tokens:            rps,
		lastUpdate:        time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
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
		waitTime := time.Duration((1.0 - r.tokens) / r.requestsPerSecond * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			r.mu.Lock()
			r.totalWaited += waitTime
			r.mu.Unlock()
		}
	}
}

// TryConsume attempts to consume a token without blocking.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	if r.tokens >= 1.0 {
		r.tokens--
		r.totalConsumed++
		return true
	}
	return false
}

// Record429 marks a rate-limit rejection from upstream, optionally
// draining the bucket if the service reported a Retry-After.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last429Time = time.Now()
	if retryAfter > 0 {
		r.tokens = 0
	}
}

func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now
	r.tokens += elapsed * r.requestsPerSecond
	if r.tokens > r.requestsPerSecond {
		r.tokens = r.requestsPerSecond
	}
}
