package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequestCounts(t *testing.T) {
	m := New()
	m.ObserveRequest("get", "/api/scripts/{script_id}", 200, 10*time.Millisecond)
	m.ObserveRequest("GET", "/api/scripts/{script_id}", 200, 20*time.Millisecond)
	m.ObserveRequest("POST", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/scripts/{script_id}", "200")); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "unmatched", "404")); got != 1 {
		t.Fatalf("expected unmatched route label, got %v", got)
	}
}

func TestScriptGeneratedAccumulatesCost(t *testing.T) {
	m := New()
	m.ScriptGenerated("openai", "casual", 0.012)
	m.ScriptGenerated("openai", "casual", 0.008)
	m.ScriptGenerated("template", "casual", 0)

	if got := testutil.ToFloat64(m.scripts.WithLabelValues("openai", "casual")); got != 2 {
		t.Fatalf("expected 2 openai scripts, got %v", got)
	}
	if got := testutil.ToFloat64(m.generationCost.WithLabelValues("openai")); got < 0.0199 || got > 0.0201 {
		t.Fatalf("unexpected cost total %v", got)
	}
}

func TestInflightGauge(t *testing.T) {
	m := New()
	done := m.RequestStarted()
	if got := testutil.ToFloat64(m.httpInFlight); got != 1 {
		t.Fatalf("expected 1 in flight, got %v", got)
	}
	done()
	if got := testutil.ToFloat64(m.httpInFlight); got != 0 {
		t.Fatalf("expected 0 in flight, got %v", got)
	}
}

func TestHandlerExposesStudioMetrics(t *testing.T) {
	m := New()
	m.RateLimited("script_generation")
	m.ProviderFailed("anthropic")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`studio_rate_limited_total{class="script_generation"} 1`,
		`studio_provider_failures_total{provider="anthropic"} 1`,
		"studio_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in exposition", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
	m.ScriptGenerated("openai", "casual", 1)
	m.RateLimited("api_call")
	m.RequestStarted()()
}
