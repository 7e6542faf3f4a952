package apiclient

import (
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// RateLimitState is a snapshot of a limiter's window.
type RateLimitState struct {
	Tokens       int
	MaxRequests  int
	RequestCount int
	WindowStart  time.Time
	TimeWindow   time.Duration
}

// RateLimiter is a fixed-window admission counter. The window reset and the
// token decrement happen under one lock.
type RateLimiter struct {
	mu           sync.Mutex
	clock        clock.Clock
	tokens       int
	maxRequests  int
	requestCount int
	windowStart  time.Time
	window       time.Duration
}

// NewRateLimiter creates a limiter admitting maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return newRateLimiter(RateLimitPolicy{MaxRequests: maxRequests, TimeWindow: window}, clock.New())
}

func newRateLimiter(p RateLimitPolicy, clk clock.Clock) *RateLimiter {
	return &RateLimiter{
		clock:       clk,
		tokens:      p.MaxRequests,
		maxRequests: p.MaxRequests,
		windowStart: clk.Now(),
		window:      p.TimeWindow,
	}
}

// TryConsume takes one token, resetting the window first when it has elapsed.
// A denial leaves the state untouched.
func (rl *RateLimiter) TryConsume() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	if now.Sub(rl.windowStart) >= rl.window {
		rl.tokens = rl.maxRequests
		rl.windowStart = now
		rl.requestCount = 0
	}

	if rl.tokens <= 0 {
		return false
	}

	rl.tokens--
	rl.requestCount++
	return true
}

// State returns the current window counters.
func (rl *RateLimiter) State() RateLimitState {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return RateLimitState{
		Tokens:       rl.tokens,
		MaxRequests:  rl.maxRequests,
		RequestCount: rl.requestCount,
		WindowStart:  rl.windowStart,
		TimeWindow:   rl.window,
	}
}
