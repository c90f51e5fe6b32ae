// Package backoff provides delay calculation strategies for the retry loop.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a given retry attempt.
type Strategy interface {
	Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration
}

// Exponential grows the delay geometrically per attempt and applies uniform
// jitter on top.
type Exponential struct{}

// Delay implements Strategy.
func (Exponential) Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Cap the exponent so the float math cannot overflow into negatives.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(base) * Pow(multiplier, attempt))
	if delay < 0 || delay > max {
		delay = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+extra > max {
			delay = max
		} else {
			delay += extra
		}
	}
	return delay
}

// Constant returns the base delay for every attempt, with uniform jitter.
type Constant struct{}

// Delay implements Strategy.
func (Constant) Delay(attempt int, base, max time.Duration, _, jitter float64) time.Duration {
	delay := base
	if max > 0 && delay > max {
		delay = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if max > 0 && delay+extra > max {
			delay = max
		} else {
			delay += extra
		}
	}
	return delay
}

// Decorrelated implements AWS-style decorrelated jitter: each delay is drawn
// uniformly from [base, min(max, base*3^attempt)].
type Decorrelated struct{}

// Delay implements Strategy.
func (Decorrelated) Delay(attempt int, base, max time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return base
	}
	if attempt > 10 {
		attempt = 10
	}

	lower := float64(base)
	upper := lower * Pow(3.0, attempt)

	maxFloat := float64(max)
	if upper > maxFloat || upper < 0 {
		upper = maxFloat
	}
	if upper < lower {
		upper = lower
	}

	delay := time.Duration(lower + rand.Float64()*(upper-lower))
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// Pow computes base^exponent by repeated multiplication, avoiding math.Pow's
// edge cases for the small integer exponents used here.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
