package qsapi

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRateLimiterConsumesTokens(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow() {
		t.Error("empty bucket must deny")
	}
	if rl.Tokens() != 0 {
		t.Errorf("expected 0 tokens, got %d", rl.Tokens())
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(2, 10*time.Millisecond)

	rl.Allow()
	rl.Allow()
	if rl.Allow() {
		t.Fatal("bucket must be empty")
	}

	time.Sleep(25 * time.Millisecond)
	if !rl.Allow() {
		t.Error("tokens must refill over time")
	}
}

func TestRateLimiterRefillCap(t *testing.T) {
	rl := NewRateLimiter(2, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	rl.Allow()
	if rl.Tokens() > 2 {
		t.Errorf("refill must cap at maxTokens, got %d", rl.Tokens())
	}
}

func TestRateLimiterConcurrency(t *testing.T) {
	rl := NewRateLimiter(100, time.Hour)

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow() {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Errorf("expected exactly 100 allowed, got %d", allowed)
	}
}

func TestHostKeyFunc(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://api.example.com/users", nil)
	if got := HostKeyFunc(req); got != "api.example.com" {
		t.Errorf("got %q", got)
	}

	if got := HostKeyFunc(&http.Request{}); got != "default" {
		t.Errorf("nil URL should map to default, got %q", got)
	}
}

func TestLimiterRegistry(t *testing.T) {
	fallback := NewRateLimiter(1, time.Hour)
	registry := NewLimiterRegistry(HostKeyFunc, fallback)

	dedicated := NewRateLimiter(5, time.Hour)
	registry.Register("api.example.com", dedicated)

	req, _ := http.NewRequest(http.MethodGet, "http://api.example.com/x", nil)
	limiter, key := registry.For(req)
	if limiter != Limiter(dedicated) || key != "api.example.com" {
		t.Errorf("expected dedicated limiter, got key %q", key)
	}

	other, _ := http.NewRequest(http.MethodGet, "http://other.example.com/x", nil)
	limiter, key = registry.For(other)
	if limiter != Limiter(fallback) || key != "default" {
		t.Errorf("expected fallback limiter, got key %q", key)
	}
}

func TestLimiterRegistryNilKeyFunc(t *testing.T) {
	fallback := NewRateLimiter(1, time.Hour)
	registry := NewLimiterRegistry(nil, fallback)

	req, _ := http.NewRequest(http.MethodGet, "http://x/", nil)
	limiter, key := registry.For(req)
	if limiter != Limiter(fallback) || key != "default" {
		t.Errorf("nil keyFunc must route to fallback, got key %q", key)
	}
}
