package qsapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCacheHit(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"hit":%d}`, atomic.LoadInt64(&hits))
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL), WithCache(time.Minute))

	first := client.Get(context.Background(), "/feed")
	if !first.Success || first.Metadata.Cached {
		t.Fatalf("first call must hit the server: success=%t cached=%t", first.Success, first.Metadata.Cached)
	}

	second := client.Get(context.Background(), "/feed")
	if !second.Success {
		t.Fatalf("second call failed: %v", second.Error)
	}
	if !second.Metadata.Cached {
		t.Error("second call must be served from cache")
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Errorf("expected 1 server hit, got %d", hits)
	}

	// Replayed body matches the original.
	data := second.Data.(map[string]any)
	if data["hit"] != float64(1) {
		t.Errorf("cached body mismatch: %v", second.Data)
	}
}

func TestCacheHitIsolatedFromCallerMutation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Page", "1")
		w.Write([]byte(`{"likes":1}`))
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL), WithCache(time.Minute))

	first := client.Get(context.Background(), "/posts/7")
	if !first.Success {
		t.Fatalf("first call failed: %v", first.Error)
	}
	first.Data.(map[string]any)["likes"] = float64(99)
	first.Headers.Set("X-Page", "tampered")

	second := client.Get(context.Background(), "/posts/7")
	if !second.Metadata.Cached {
		t.Fatal("second call must be served from cache")
	}
	if got := second.Data.(map[string]any)["likes"]; got != float64(1) {
		t.Errorf("cached data must not share state with earlier envelopes, likes=%v", got)
	}
	if got := second.Headers.Get("X-Page"); got != "1" {
		t.Errorf("cached headers must not share state with earlier envelopes, X-Page=%q", got)
	}
}

func TestCacheKeyIncludesQuery(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL), WithCache(time.Minute))
	client.Get(context.Background(), "/feed", WithQueryParam("page", "1"))
	client.Get(context.Background(), "/feed", WithQueryParam("page", "2"))

	if atomic.LoadInt64(&hits) != 2 {
		t.Errorf("different query params must not share a cache entry, hits=%d", hits)
	}
}

func TestCacheSkipsNonGET(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL), WithCache(time.Minute))
	client.Post(context.Background(), "/posts", nil)
	client.Post(context.Background(), "/posts", nil)

	if atomic.LoadInt64(&hits) != 2 {
		t.Errorf("POST must bypass the cache, hits=%d", hits)
	}
}

func TestCacheNoCacheOption(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL), WithCache(time.Minute))
	client.Get(context.Background(), "/feed")
	client.Get(context.Background(), "/feed", WithNoCache())

	if atomic.LoadInt64(&hits) != 2 {
		t.Errorf("WithNoCache must bypass the cache, hits=%d", hits)
	}
}

func TestCacheHonorsNoStore(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL), WithCache(time.Minute))
	client.Get(context.Background(), "/private")
	client.Get(context.Background(), "/private")

	if atomic.LoadInt64(&hits) != 2 {
		t.Errorf("no-store responses must not be cached, hits=%d", hits)
	}
}

func TestCacheEntryExpiry(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL), WithCache(20*time.Millisecond))
	client.Get(context.Background(), "/feed")
	time.Sleep(30 * time.Millisecond)
	env := client.Get(context.Background(), "/feed")

	if env.Metadata.Cached {
		t.Error("expired entry must not be served")
	}
	if atomic.LoadInt64(&hits) != 2 {
		t.Errorf("expected refetch after expiry, hits=%d", hits)
	}
}

func TestInMemoryCacheBasics(t *testing.T) {
	cache := NewInMemoryCache()

	if _, found := cache.Get("missing"); found {
		t.Error("empty cache must miss")
	}

	cache.Set("k", &CacheEntry{Status: 200}, time.Minute)
	entry, found := cache.Get("k")
	if !found || entry.Status != 200 {
		t.Errorf("expected stored entry, got (%v, %t)", entry, found)
	}
	if cache.Len() != 1 {
		t.Errorf("expected length 1, got %d", cache.Len())
	}

	cache.Delete("k")
	if _, found := cache.Get("k"); found {
		t.Error("deleted entry must miss")
	}

	cache.Set("a", &CacheEntry{}, time.Minute)
	cache.Set("b", &CacheEntry{}, time.Minute)
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", cache.Len())
	}
}

func TestInMemoryCacheLazyExpiry(t *testing.T) {
	cache := NewInMemoryCache()
	cache.Set("k", &CacheEntry{}, 5*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	if _, found := cache.Get("k"); found {
		t.Error("expired entry must not be returned")
	}
}

func TestBoundedCacheEviction(t *testing.T) {
	// One entry per shard: every insert into an occupied shard evicts.
	cache := NewBoundedCache(cacheShardCount)

	for i := 0; i < cacheShardCount*4; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), &CacheEntry{}, time.Minute)
	}

	if got := cache.Len(); got > cacheShardCount {
		t.Errorf("bounded cache exceeded its size: %d > %d", got, cacheShardCount)
	}
}

func TestDefaultCacheKey(t *testing.T) {
	key := DefaultCacheKey(http.MethodGet, "http://x/feed?page=1")
	if key != "GET:http://x/feed?page=1" {
		t.Errorf("unexpected key %q", key)
	}
}

func TestCustomKeyGenerator(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithCacheConfig(CacheConfig{
			Enabled: true,
			TTL:     time.Minute,
			KeyGenerator: func(method, url string) string {
				// Collapse all URLs onto one entry.
				return method
			},
		}),
	)

	client.Get(context.Background(), "/a")
	client.Get(context.Background(), "/b")

	if atomic.LoadInt64(&hits) != 1 {
		t.Errorf("custom key must collapse both calls, hits=%d", hits)
	}
}

func TestParseCacheControl(t *testing.T) {
	d := parseCacheControl("no-store, max-age=60")
	if !d.noStore {
		t.Error("expected no-store")
	}
	if d.maxAge == nil || *d.maxAge != time.Minute {
		t.Errorf("expected max-age 60, got %v", d.maxAge)
	}

	d = parseCacheControl(`s-maxage="30", private`)
	if d.sMaxAge == nil || *d.sMaxAge != 30*time.Second {
		t.Errorf("expected s-maxage 30, got %v", d.sMaxAge)
	}
	if !d.private {
		t.Error("expected private")
	}

	d = parseCacheControl("max-age=abc, max-age=-5")
	if d.maxAge != nil {
		t.Errorf("invalid max-age values must be ignored, got %v", d.maxAge)
	}

	d = parseCacheControl("")
	if d.noStore || d.noCache || d.private || d.maxAge != nil || d.sMaxAge != nil {
		t.Errorf("empty header must parse to zero directives, got %+v", d)
	}
}

func TestCacheTTLFor(t *testing.T) {
	header := func(value string) http.Header {
		h := http.Header{}
		if value != "" {
			h.Set("Cache-Control", value)
		}
		return h
	}

	if ttl, ok := cacheTTLFor(header(""), time.Minute); !ok || ttl != time.Minute {
		t.Errorf("default TTL: got (%v, %t)", ttl, ok)
	}
	if _, ok := cacheTTLFor(header("no-store"), time.Minute); ok {
		t.Error("no-store must suppress caching")
	}
	if _, ok := cacheTTLFor(header("no-cache"), time.Minute); ok {
		t.Error("no-cache must suppress caching")
	}
	if _, ok := cacheTTLFor(header("private"), time.Minute); ok {
		t.Error("private must suppress caching")
	}
	if ttl, ok := cacheTTLFor(header("max-age=120"), time.Minute); !ok || ttl != 2*time.Minute {
		t.Errorf("max-age: got (%v, %t)", ttl, ok)
	}
	if ttl, ok := cacheTTLFor(header("max-age=120, s-maxage=30"), time.Minute); !ok || ttl != 30*time.Second {
		t.Errorf("s-maxage wins: got (%v, %t)", ttl, ok)
	}
	if _, ok := cacheTTLFor(header("max-age=0"), time.Minute); ok {
		t.Error("max-age=0 must suppress caching")
	}
	if _, ok := cacheTTLFor(header(""), 0); ok {
		t.Error("zero default TTL must suppress caching")
	}
}
