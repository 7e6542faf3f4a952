package apiclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/osuuj/nokia-city-data-analysis-sub002/internal/backoff"
)

// Retry defaults applied when a policy leaves a field unset.
const (
	DefaultRetryCount    = 3
	DefaultRetryDelay    = time.Second
	DefaultBackoffFactor = 2.0
	DefaultMaxRetryDelay = 30 * time.Second
)

// RetryPolicy bounds automatic retries of one logical request. Count is the
// number of retries after the first attempt.
type RetryPolicy struct {
	Count         int           `yaml:"count"`
	Delay         time.Duration `yaml:"delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	Jitter        float64       `yaml:"jitter"`
	// Statuses replaces the default status rule (408, 429, 5xx) when set.
	// Network and timeout failures stay retryable.
	Statuses []int `yaml:"statuses"`
	// ReplayInterceptors re-runs request interceptors before every retry.
	ReplayInterceptors bool `yaml:"replay_interceptors"`
	// Disabled turns retries off even when Count is inherited from a default.
	Disabled bool `yaml:"disabled"`
}

// DefaultRetryPolicy returns three retries starting at one second, doubling
// up to thirty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Count:         DefaultRetryCount,
		Delay:         DefaultRetryDelay,
		BackoffFactor: DefaultBackoffFactor,
		MaxDelay:      DefaultMaxRetryDelay,
	}
}

// NoRetry disables automatic retries.
func NoRetry() RetryPolicy {
	return RetryPolicy{Disabled: true}
}

func (p RetryPolicy) clone() RetryPolicy {
	p.Statuses = append([]int(nil), p.Statuses...)
	return p
}

// merge layers the non-zero fields of o over p. A positive Count re-enables
// retries that the base policy disabled.
func (p RetryPolicy) merge(o RetryPolicy) RetryPolicy {
	if o.Disabled {
		p.Disabled = true
	}
	if o.Count > 0 {
		p.Count = o.Count
		p.Disabled = o.Disabled
	}
	if o.Delay > 0 {
		p.Delay = o.Delay
	}
	if o.BackoffFactor > 0 {
		p.BackoffFactor = o.BackoffFactor
	}
	if o.MaxDelay > 0 {
		p.MaxDelay = o.MaxDelay
	}
	if o.Jitter > 0 {
		p.Jitter = o.Jitter
	}
	if len(o.Statuses) > 0 {
		p.Statuses = append([]int(nil), o.Statuses...)
	}
	if o.ReplayInterceptors {
		p.ReplayInterceptors = true
	}
	return p
}

func (p RetryPolicy) maxRetries() int {
	if p.Disabled || p.Count < 0 {
		return 0
	}
	return p.Count
}

// allows reports whether err may be retried after retryCount retries.
// Validation failures are never retried, whatever Statuses lists.
func (p RetryPolicy) allows(err *Error, retryCount int) bool {
	if err == nil || err.Canceled || retryCount >= p.maxRetries() {
		return false
	}
	if err.Kind == KindValidation {
		return false
	}
	if len(p.Statuses) == 0 {
		return err.Retryable()
	}
	if err.Status == 0 {
		return err.Kind == KindNetwork || err.Kind == KindTimeout
	}
	for _, s := range p.Statuses {
		if s == err.Status {
			return true
		}
	}
	return false
}

// delayFor returns the wait before retry number retryCount+1. A server
// Retry-After value takes precedence over the computed backoff; both are
// capped at MaxDelay.
func (p RetryPolicy) delayFor(retryCount int, retryAfter time.Duration) time.Duration {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxRetryDelay
	}
	if retryAfter > 0 {
		return backoff.Cap(retryAfter, maxDelay)
	}

	factor := p.BackoffFactor
	if factor <= 0 {
		factor = DefaultBackoffFactor
	}
	return backoff.Exponential(retryCount, backoff.Params{
		Base:   p.Delay,
		Max:    maxDelay,
		Factor: factor,
		Jitter: p.Jitter,
	})
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds format and HTTP-date format.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		if delay := t.Sub(now); delay > 0 {
			return delay
		}
	}

	return 0
}
