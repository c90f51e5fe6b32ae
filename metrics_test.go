package qsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsCollectorIsSafe(t *testing.T) {
	var mc *MetricsCollector

	mc.RecordRequest("GET", "host/", 200, time.Millisecond)
	mc.RecordRequestStart("GET", "host/")
	mc.RecordRequestEnd("GET", "host/")
	mc.RecordRetry("GET", "host/", 1)
	mc.RecordRetryBudgetExceeded("host/")
	mc.RecordCircuitBreakerState("default", StateOpen)
	mc.RecordRateLimiterTokens("default", 3)
	mc.RecordCacheHit("GET", "host/")
	mc.RecordCacheMiss("GET", "host/")
	mc.RecordCacheSize("default", 10)
	mc.RecordDedupHit("GET", "host/")
	mc.RecordError(ErrCodeTimeout, "GET", "host/")
}

func TestMetricsCollectorRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequest("GET", "host/users", 200, 50*time.Millisecond)
	mc.RecordRequest("GET", "host/users", 200, 30*time.Millisecond)
	mc.RecordCacheHit("GET", "host/users")
	mc.RecordCircuitBreakerState("default", StateHalfOpen)
	mc.RecordError(ErrCodeServer, "GET", "host/users")

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "host/users")); got != 2 {
		t.Errorf("requests_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("GET", "host/users")); got != 1 {
		t.Errorf("cache_hits_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.circuitBreakerState.WithLabelValues("default")); got != float64(StateHalfOpen) {
		t.Errorf("circuit_breaker_state = %v, want %d", got, StateHalfOpen)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues("SERVER_ERROR", "GET", "host/users")); got != 1 {
		t.Errorf("errors_total = %v, want 1", got)
	}
}

func TestMetricsRetryBudgetHostLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRetryBudgetExceeded("api.example.com/users/42")

	if got := testutil.ToFloat64(mc.retryBudgetExceeded.WithLabelValues("api.example.com")); got != 1 {
		t.Errorf("retry_budget_exceeded_total = %v, want 1 under the host label", got)
	}
}

func TestMetricsThroughPipeline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)
	client := New(
		WithBaseURL(server.URL),
		WithCache(time.Minute),
		WithMetricsCollector(mc),
	)

	client.Get(context.Background(), "/feed")
	client.Get(context.Background(), "/feed")

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}

	found := map[string]bool{}
	for _, family := range families {
		found[family.GetName()] = true
	}
	for _, name := range []string{"qsapi_requests_total", "qsapi_cache_hits_total", "qsapi_cache_misses_total"} {
		if !found[name] {
			t.Errorf("expected metric family %s, got %v", name, found)
		}
	}

	// In-flight gauge must return to zero once both calls finish.
	endpoint := endpointFromTarget(server.URL + "/feed")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", endpoint)); got != 0 {
		t.Errorf("requests_in_flight = %v, want 0", got)
	}
}
