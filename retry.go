package qsapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/thural/QuietSpace-Frontend-sub010/internal/backoff"
)

// RetryCondition decides whether a failed attempt should be retried. Either
// the attempt error or the result may be nil.
type RetryCondition func(status int, err error) bool

// DefaultRetryCondition retries transport errors, 429 and the 5xx family.
// Errors already classified onto the closed code set only retry when
// transient, so parse and configuration failures stop the loop.
func DefaultRetryCondition(status int, err error) bool {
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return IsTransient(apiErr)
		}
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

// RetryPolicy decides retry eligibility and delay for an attempt.
type RetryPolicy interface {
	// ShouldRetry returns the delay before the next attempt and whether to
	// retry at all. attempt is zero-based: 0 means the initial try failed.
	ShouldRetry(method string, status int, header http.Header, err error, attempt int) (time.Duration, bool)
}

// DefaultRetryPolicy implements the retry rules wired into the executor:
// idempotent methods only, Retry-After aware, backoff from the configured
// strategy.
type DefaultRetryPolicy struct {
	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       float64
	strategy     backoff.Strategy
	condition    RetryCondition
	isIdempotent func(method string) bool
}

// NewRetryPolicy builds the policy used for a given RetryConfig.
func NewRetryPolicy(cfg RetryConfig) *DefaultRetryPolicy {
	var strategy backoff.Strategy = backoff.Constant{}
	if cfg.ExponentialBackoff {
		strategy = backoff.Exponential{}
	}

	condition := cfg.RetryCondition
	if condition == nil {
		condition = DefaultRetryCondition
	}

	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}

	return &DefaultRetryPolicy{
		maxAttempts:  cfg.MaxAttempts,
		baseDelay:    cfg.RetryDelay,
		maxDelay:     maxDelay,
		multiplier:   2.0,
		jitter:       cfg.Jitter,
		strategy:     strategy,
		condition:    condition,
		isIdempotent: DefaultIsIdempotent,
	}
}

// WithBackoffStrategy swaps the delay strategy (for decorrelated jitter).
func (p *DefaultRetryPolicy) WithBackoffStrategy(strategy backoff.Strategy) *DefaultRetryPolicy {
	p.strategy = strategy
	return p
}

// ShouldRetry implements RetryPolicy.
func (p *DefaultRetryPolicy) ShouldRetry(method string, status int, header http.Header, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxAttempts {
		return 0, false
	}
	if responseReceived(status, err) && !p.isIdempotent(method) {
		return 0, false
	}
	if !p.condition(status, err) {
		return 0, false
	}

	// Honor Retry-After on 429/503 before computing backoff.
	var delay time.Duration
	if err == nil && (status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable) {
		delay = parseRetryAfter(header.Get("Retry-After"))
	}
	if delay == 0 {
		delay = p.strategy.Delay(attempt, p.baseDelay, p.maxDelay, p.multiplier, p.jitter)
	}
	return delay, true
}

// responseReceived reports whether the server saw the request: a status came
// back directly or inside a classified error. Such attempts may have applied
// side effects, so only idempotent methods re-issue them.
func responseReceived(status int, err error) bool {
	if status > 0 {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status > 0
}

// DefaultIsIdempotent reports whether the HTTP method is safe to re-issue.
func DefaultIsIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms, capped at
// one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

// RetryBudget caps the total number of retries issued per window across all
// calls, protecting upstreams from retry storms.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     int64
	windowStart int64
}

// NewRetryBudget creates a windowed retry budget.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		perWindow:   perWindow,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow reports whether another retry fits the current window.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&rb.windowStart)

	if now-windowStart >= int64(rb.perWindow) {
		if atomic.CompareAndSwapInt64(&rb.windowStart, windowStart, now) {
			atomic.StoreInt64(&rb.current, 0)
		}
	}

	if atomic.LoadInt64(&rb.current) >= rb.maxRetries {
		return false
	}
	return atomic.AddInt64(&rb.current, 1) <= rb.maxRetries
}

// Stats returns the current budget usage and window start.
func (rb *RetryBudget) Stats() (current, max int64, windowStart time.Time) {
	return atomic.LoadInt64(&rb.current),
		rb.maxRetries,
		time.Unix(0, atomic.LoadInt64(&rb.windowStart))
}
