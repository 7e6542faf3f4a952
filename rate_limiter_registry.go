package apiclient

import (
	"sync"

	"github.com/facebookgo/clock"
)

// rateLimiterRegistry resolves the limiter gating a request: the client
// default, or a dedicated limiter per distinct override policy.
type rateLimiterRegistry struct {
	mu       sync.Mutex
	clock    clock.Clock
	fallback *RateLimiter
	limiters map[string]*RateLimiter
}

func newRateLimiterRegistry(clk clock.Clock) *rateLimiterRegistry {
	return &rateLimiterRegistry{
		clock:    clk,
		limiters: make(map[string]*RateLimiter),
	}
}

func (r *rateLimiterRegistry) setDefault(p *RateLimitPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		r.fallback = nil
		return
	}
	r.fallback = newRateLimiter(*p, r.clock)
}

func (r *rateLimiterRegistry) defaultLimiter() *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fallback
}

// limiterFor returns the limiter for an override policy, or the default when
// override is nil. A nil limiter means the request is not rate limited.
func (r *rateLimiterRegistry) limiterFor(override *RateLimitPolicy) (*RateLimiter, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if override == nil {
		return r.fallback, "default"
	}

	key := override.key()
	limiter, exists := r.limiters[key]
	if !exists {
		limiter = newRateLimiter(*override, r.clock)
		r.limiters[key] = limiter
	}
	return limiter, key
}
