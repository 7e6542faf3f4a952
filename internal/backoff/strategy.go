// Package backoff computes delays between retry attempts.
package backoff

import (
	"math/rand"
	"time"
)

// maxExponent keeps factor^attempt from overflowing a time.Duration.
const maxExponent = 30

// Params describes an exponential schedule: Base * Factor^attempt, capped at
// Max, with an optional proportional Jitter in [0, 1].
type Params struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// Exponential returns the delay before retry number attempt (zero based).
func Exponential(attempt int, p Params) time.Duration {
	return exponential(attempt, p, rand.Float64)
}

func exponential(attempt int, p Params, random func() float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxExponent {
		attempt = maxExponent
	}

	factor := p.Factor
	if factor <= 0 {
		factor = 1
	}

	delay := time.Duration(float64(p.Base) * Pow(factor, attempt))
	if p.Max > 0 && (delay < 0 || delay > p.Max) {
		delay = p.Max
	}

	jitter := clampJitter(p.Jitter)
	if jitter > 0 && delay > 0 {
		delay += time.Duration(float64(delay) * jitter * random())
		if p.Max > 0 && delay > p.Max {
			delay = p.Max
		}
	}
	return delay
}

// Cap bounds d by max when max is positive.
func Cap(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

// clampJitter ensures jitter is within valid bounds [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// Pow calculates base^exponent for a non-negative integer exponent.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
