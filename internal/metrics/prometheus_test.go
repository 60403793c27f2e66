package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.StoreFallbacks.Inc()
	prom.Metrics.DraftsSaved.Inc()
	prom.Metrics.DraftsSaved.Inc()
	prom.Metrics.CommitFallbacks.Inc()
	prom.Metrics.KPIEvents.Inc()

	assertCounter(t, prom.counters["store_fallbacks_total"], 1)
	assertCounter(t, prom.counters["drafts_saved_total"], 2)
	assertCounter(t, prom.counters["commit_fallbacks_total"], 1)
	assertCounter(t, prom.counters["kpi_events_total"], 1)
	assertCounter(t, prom.counters["commits_failed_total"], 0)
}

func TestPrometheusHandlerExposesNamespace(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.DraftsCleared.Inc()
	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nurseos_drafts_cleared_total 1") {
		t.Fatalf("expected drafts cleared counter in output:\n%s", rec.Body.String())
	}
}

func TestOrNoop(t *testing.T) {
	m := OrNoop(nil)
	if m == nil || m.StoreFallbacks == nil {
		t.Fatalf("expected noop metrics")
	}
	m.StoreFallbacks.Inc()
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
