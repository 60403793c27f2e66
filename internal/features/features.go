// Package features holds the optional ward modules switched on by the
// features section of the config.
package features

import (
	"errors"
	"sort"
	"strings"
	"time"

	"nurseos/internal/audit"
	"nurseos/internal/config"
	"nurseos/internal/metrics"
)

const (
	BCMA    = "bcma"
	Escalas = "escalas"
)

var (
	ErrDisabled = errors.New("feature disabled")
	ErrInvalid  = errors.New("invalid request")
)

var known = []string{BCMA, Escalas}

type Flags struct {
	cfg *config.Config
}

func NewFlags(cfg *config.Config) Flags {
	return Flags{cfg: cfg}
}

func (f Flags) Enabled(name string) bool {
	return f.cfg.FeatureEnabled(name)
}

// All reports every known module, plus any extra name found in the config.
func (f Flags) All() map[string]bool {
	out := make(map[string]bool, len(known))
	for _, name := range known {
		out[name] = f.Enabled(name)
	}
	if f.cfg != nil {
		for name, enabled := range f.cfg.Features {
			out[strings.ToLower(name)] = enabled
		}
	}
	return out
}

func (f Flags) Names() []string {
	all := f.All()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// kpi counts a module event and records it in the audit log.
func kpi(rec audit.Recorder, m *metrics.Metrics, action, resourceType, resourceID string, at time.Time, data map[string]any) {
	m.KPIEvents.Inc()
	if rec == nil {
		return
	}
	rec.Record(audit.Event{
		Time:         at,
		Status:       "ok",
		Category:     "kpi",
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		Data:         data,
	})
}
