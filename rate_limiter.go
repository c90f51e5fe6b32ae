package qsapi

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter gates outgoing requests.
type Limiter interface {
	Allow() bool
}

// RateLimiter is a lock-free token bucket. Tokens refill at one per
// refillRate elapsed, capped at maxTokens.
type RateLimiter struct {
	tokens     int64
	maxTokens  int64
	refillRate time.Duration
	lastRefill int64
}

// NewRateLimiter creates a full token bucket.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		maxTokens:  int64(maxTokens),
		tokens:     int64(maxTokens),
		refillRate: refillRate,
		lastRefill: time.Now().UnixNano(),
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.refill()
	return rl.consume()
}

// Tokens returns the current token count for metrics.
func (rl *RateLimiter) Tokens() int {
	return int(atomic.LoadInt64(&rl.tokens))
}

func (rl *RateLimiter) refill() {
	now := time.Now().UnixNano()

	for {
		currentTokens := atomic.LoadInt64(&rl.tokens)
		lastRefill := atomic.LoadInt64(&rl.lastRefill)

		elapsed := now - lastRefill
		tokensToAdd := int64(0)
		if rl.refillRate > 0 {
			tokensToAdd = elapsed / int64(rl.refillRate)
		}
		if tokensToAdd == 0 {
			return
		}

		newTokens := currentTokens + tokensToAdd
		if newTokens > rl.maxTokens {
			newTokens = rl.maxTokens
		}

		// Advance lastRefill by whole refill intervals so fractional elapsed
		// time is not lost.
		newLastRefill := lastRefill + tokensToAdd*int64(rl.refillRate)
		if !atomic.CompareAndSwapInt64(&rl.lastRefill, lastRefill, newLastRefill) {
			continue
		}

		atomic.StoreInt64(&rl.tokens, newTokens)
		return
	}
}

func (rl *RateLimiter) consume() bool {
	for {
		currentTokens := atomic.LoadInt64(&rl.tokens)
		if currentTokens <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&rl.tokens, currentTokens, currentTokens-1) {
			return true
		}
	}
}

// LimiterKeyFunc derives a registry key from a request, typically the host.
type LimiterKeyFunc func(req *http.Request) string

// HostKeyFunc keys limiters by request host.
func HostKeyFunc(req *http.Request) string {
	if req.URL == nil {
		return "default"
	}
	return req.URL.Host
}

// LimiterRegistry maps request keys to dedicated limiters, falling back to a
// shared limiter for unregistered keys.
type LimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
	keyFunc  LimiterKeyFunc
	fallback Limiter
}

// NewLimiterRegistry creates a registry with the given key function and
// fallback limiter. A nil keyFunc routes everything to the fallback.
func NewLimiterRegistry(keyFunc LimiterKeyFunc, fallback Limiter) *LimiterRegistry {
	return &LimiterRegistry{
		limiters: make(map[string]Limiter),
		keyFunc:  keyFunc,
		fallback: fallback,
	}
}

// Register adds a limiter for the given key.
func (r *LimiterRegistry) Register(key string, limiter Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[key] = limiter
}

// For returns the limiter responsible for the request plus its key.
func (r *LimiterRegistry) For(req *http.Request) (Limiter, string) {
	if r.keyFunc == nil {
		return r.fallback, "default"
	}

	key := r.keyFunc(req)

	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter, key
	}
	return r.fallback, "default"
}
