package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "nurseos"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
	counters map[string]prometheus.Counter
}

var counterHelp = []struct {
	name string
	help string
}{
	{"store_fallbacks_total", "Store operations served by the in-memory fallback."},
	{"drafts_saved_total", "Draft payloads written through the store."},
	{"drafts_restored_total", "Drafts recovered when a context was entered."},
	{"drafts_cleared_total", "Drafts removed after a successful commit."},
	{"commits_succeeded_total", "Handover documents committed upstream."},
	{"commits_failed_total", "Handover commits that failed on every strategy."},
	{"commit_fallbacks_total", "Commits that needed a fallback strategy."},
	{"upstream_failures_total", "Failed patient or device fetches."},
	{"audit_dropped_total", "Audit events dropped because the queue was full."},
	{"kpi_events_total", "KPI events recorded by feature modules."},
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counters := make(map[string]prometheus.Counter, len(counterHelp))
	for _, c := range counterHelp {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      c.name,
			Help:      c.help,
		})
		registry.MustRegister(counter)
		counters[c.name] = counter
	}

	m := &Metrics{
		StoreFallbacks:   promCounter{counters["store_fallbacks_total"]},
		DraftsSaved:      promCounter{counters["drafts_saved_total"]},
		DraftsRestored:   promCounter{counters["drafts_restored_total"]},
		DraftsCleared:    promCounter{counters["drafts_cleared_total"]},
		CommitsSucceeded: promCounter{counters["commits_succeeded_total"]},
		CommitsFailed:    promCounter{counters["commits_failed_total"]},
		CommitFallbacks:  promCounter{counters["commit_fallbacks_total"]},
		UpstreamFailures: promCounter{counters["upstream_failures_total"]},
		AuditDropped:     promCounter{counters["audit_dropped_total"]},
		KPIEvents:        promCounter{counters["kpi_events_total"]},
	}

	return &Prometheus{
		Metrics:  m,
		registry: registry,
		counters: counters,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
