package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	StoreFallbacks   Counter
	DraftsSaved      Counter
	DraftsRestored   Counter
	DraftsCleared    Counter
	CommitsSucceeded Counter
	CommitsFailed    Counter
	CommitFallbacks  Counter
	UpstreamFailures Counter
	AuditDropped     Counter
	KPIEvents        Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		StoreFallbacks:   n,
		DraftsSaved:      n,
		DraftsRestored:   n,
		DraftsCleared:    n,
		CommitsSucceeded: n,
		CommitsFailed:    n,
		CommitFallbacks:  n,
		UpstreamFailures: n,
		AuditDropped:     n,
		KPIEvents:        n,
	}
}

// OrNoop lets components accept a nil *Metrics.
func OrNoop(m *Metrics) *Metrics {
	if m == nil {
		return NewNoop()
	}
	return m
}
