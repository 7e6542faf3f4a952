package apiclient

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	if collector == nil {
		t.Fatal("NewMetricsCollectorWithRegistry() returned nil")
	}

	if collector.requestsTotal == nil {
		t.Error("requestsTotal metric not initialized")
	}

	if collector.requestDuration == nil {
		t.Error("requestDuration metric not initialized")
	}

	if collector.requestsInFlight == nil {
		t.Error("requestsInFlight metric not initialized")
	}

	if collector.retriesTotal == nil {
		t.Error("retriesTotal metric not initialized")
	}

	if collector.rateLimiterDenials == nil {
		t.Error("rateLimiterDenials metric not initialized")
	}

	if collector.cancellations == nil {
		t.Error("cancellations metric not initialized")
	}

	if collector.errorsTotal == nil {
		t.Error("errorsTotal metric not initialized")
	}

	if collector.GetRegistry() != registry {
		t.Error("Expected GetRegistry to return the supplied registry")
	}
}

func TestNewMetricsCollectorPrivateRegistry(t *testing.T) {
	a := NewMetricsCollector()
	b := NewMetricsCollector()

	if a.GetRegistry() == b.GetRegistry() {
		t.Error("Expected each collector to own its registry")
	}
}

func TestRecordRequest(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	collector.RecordRequest("GET", "api/users", 200, 150*time.Millisecond)
	collector.RecordRequest("GET", "api/users", 200, 50*time.Millisecond)

	got := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("GET", "200", "api/users"))
	if got != 2 {
		t.Errorf("Expected 2 requests, got %v", got)
	}
}

func TestRecordRequestInFlight(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	collector.RecordRequestStart("GET", "api/users")
	collector.RecordRequestStart("GET", "api/users")
	collector.RecordRequestEnd("GET", "api/users")

	got := testutil.ToFloat64(collector.requestsInFlight.WithLabelValues("GET", "api/users"))
	if got != 1 {
		t.Errorf("Expected 1 request in flight, got %v", got)
	}
}

func TestRecordRetry(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	collector.RecordRetry("POST", "api/orders", 1)
	collector.RecordRetry("POST", "api/orders", 2)

	if got := testutil.ToFloat64(collector.retriesTotal.WithLabelValues("POST", "api/orders", "2")); got != 1 {
		t.Errorf("Expected 1 second retry, got %v", got)
	}
}

func TestRecordRateLimiter(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	collector.RecordRateLimiterTokens("default", 7)
	collector.RecordRateLimitDenial("default")

	if got := testutil.ToFloat64(collector.rateLimiterTokens.WithLabelValues("default")); got != 7 {
		t.Errorf("Expected 7 tokens, got %v", got)
	}
	if got := testutil.ToFloat64(collector.rateLimiterDenials.WithLabelValues("default")); got != 1 {
		t.Errorf("Expected 1 denial, got %v", got)
	}
}

func TestRecordCache(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	collector.RecordCacheHit("GET", "api/users")
	collector.RecordCacheMiss("GET", "api/users")
	collector.RecordCacheMiss("GET", "api/users")
	collector.RecordCacheSize("default", 12)

	if got := testutil.ToFloat64(collector.cacheHits.WithLabelValues("GET", "api/users")); got != 1 {
		t.Errorf("Expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(collector.cacheMisses.WithLabelValues("GET", "api/users")); got != 2 {
		t.Errorf("Expected 2 misses, got %v", got)
	}
	if got := testutil.ToFloat64(collector.cacheSize.WithLabelValues("default")); got != 12 {
		t.Errorf("Expected cache size 12, got %v", got)
	}
}

func TestRecordError(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	collector.RecordError(KindServer, "GET", "api/users")

	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("server", "GET", "api/users")); got != 1 {
		t.Errorf("Expected 1 server error, got %v", got)
	}
}

func TestMetricsCollectorWithNil(t *testing.T) {
	var collector *MetricsCollector

	collector.RecordRequest("GET", "api/users", 200, time.Millisecond)
	collector.RecordRequestStart("GET", "api/users")
	collector.RecordRequestEnd("GET", "api/users")
	collector.RecordRetry("GET", "api/users", 1)
	collector.RecordRateLimiterTokens("default", 1)
	collector.RecordRateLimitDenial("default")
	collector.RecordCacheHit("GET", "api/users")
	collector.RecordCacheMiss("GET", "api/users")
	collector.RecordCacheSize("default", 1)
	collector.RecordDeduplicationHit("GET", "api/users")
	collector.RecordCancellation("GET", "api/users")
	collector.RecordError(KindNetwork, "GET", "api/users")

	if collector.GetRegistry() != nil {
		t.Error("Expected nil registry from nil collector")
	}
}

func endpointLabel(rawURL string) string {
	return strings.TrimPrefix(rawURL, "http://")
}

func TestMetricsWithCache(t *testing.T) {
	backend := newTestBackend(t)
	backend.handle(http.MethodGet, "/items", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []string{"a"})
	})

	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	client := New(WithMetricsCollector(collector), WithCache(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.Get(ctx, backend.url("/items")); err != nil {
			t.Fatalf(expectedNoErrorMsg, err)
		}
	}

	endpoint := endpointLabel(backend.url("/items"))
	if got := testutil.ToFloat64(collector.cacheMisses.WithLabelValues("GET", endpoint)); got != 1 {
		t.Errorf("Expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(collector.cacheHits.WithLabelValues("GET", endpoint)); got != 2 {
		t.Errorf("Expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(collector.cacheSize.WithLabelValues("default")); got != 1 {
		t.Errorf("Expected cache size 1, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("GET", "200", endpoint)); got != 3 {
		t.Errorf("Expected 3 completed requests, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestsInFlight.WithLabelValues("GET", endpoint)); got != 0 {
		t.Errorf("Expected no request in flight, got %v", got)
	}
}

func TestMetricsWithRetries(t *testing.T) {
	backend := newTestBackend(t)
	backend.handle(http.MethodGet, "/flaky", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusServiceUnavailable, map[string]string{"message": "down"})
	})

	registry := prometheus.NewRegistry()
	client := New(WithMetricsRegistry(registry), WithRetryPolicy(RetryPolicy{Count: 2, Delay: 0}))

	_, err := client.Get(context.Background(), backend.url("/flaky"))
	if err == nil {
		t.Fatal("Expected an error")
	}

	endpoint := endpointLabel(backend.url("/flaky"))
	collector := client.metrics
	if got := testutil.ToFloat64(collector.retriesTotal.WithLabelValues("GET", endpoint, "1")); got != 1 {
		t.Errorf("Expected a first retry, got %v", got)
	}
	if got := testutil.ToFloat64(collector.retriesTotal.WithLabelValues("GET", endpoint, "2")); got != 1 {
		t.Errorf("Expected a second retry, got %v", got)
	}
	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("server", "GET", endpoint)); got != 1 {
		t.Errorf("Expected 1 server error, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("GET", "503", endpoint)); got != 1 {
		t.Errorf("Expected 1 logical request, got %v", got)
	}
	if backend.hitCount(http.MethodGet, "/flaky") != 3 {
		t.Errorf("Expected 3 attempts, got %d", backend.hitCount(http.MethodGet, "/flaky"))
	}
}

func TestMetricsWithRateLimiter(t *testing.T) {
	backend := newTestBackend(t)
	backend.handle(http.MethodGet, "/limited", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, "ok")
	})

	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	client := New(WithMetricsCollector(collector), WithRateLimit(1, time.Hour), WithMaxRetries(0))
	ctx := context.Background()

	if _, err := client.Get(ctx, backend.url("/limited")); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if _, err := client.Get(ctx, backend.url("/limited")); err == nil {
		t.Fatal("Expected the second request to be rate limited")
	}

	if got := testutil.ToFloat64(collector.rateLimiterTokens.WithLabelValues("default")); got != 0 {
		t.Errorf("Expected 0 tokens, got %v", got)
	}
	if got := testutil.ToFloat64(collector.rateLimiterDenials.WithLabelValues("default")); got != 1 {
		t.Errorf("Expected 1 denial, got %v", got)
	}
	endpoint := endpointLabel(backend.url("/limited"))
	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("rate-limit", "GET", endpoint)); got != 1 {
		t.Errorf("Expected 1 rate-limit error, got %v", got)
	}
}

func TestMetricsRegistryGather(t *testing.T) {
	backend := newTestBackend(t)
	backend.handle(http.MethodGet, "/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, "pong")
	})

	registry := prometheus.NewRegistry()
	client := New(WithMetricsRegistry(registry))
	if _, err := client.Get(context.Background(), backend.url("/ping")); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	count, err := testutil.GatherAndCount(registry, "apiclient_requests_total", "apiclient_request_duration_seconds")
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if count != 2 {
		t.Errorf("Expected 2 series, got %d", count)
	}
}
