package features

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"nurseos/internal/audit"
	"nurseos/internal/draft"
	"nurseos/internal/metrics"
	"nurseos/internal/scales"
	"nurseos/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultEscalasPrefix = "nurseos/escalas"

// ScaleEntry is one scored scale for a patient.
type ScaleEntry struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patientId"`
	Scale      string    `json:"scale"`
	Score      float64   `json:"score"`
	Notes      string    `json:"notes,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

type EscalasService struct {
	flags   Flags
	scales  *scales.Registry
	store   *state.Adapter
	prefix  string
	audit   audit.Recorder
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewEscalas(flags Flags, reg *scales.Registry, store *state.Adapter, prefix string, rec audit.Recorder, m *metrics.Metrics, log *zap.Logger) *EscalasService {
	if prefix == "" {
		prefix = DefaultEscalasPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EscalasService{
		flags:   flags,
		scales:  reg,
		store:   store,
		prefix:  prefix,
		audit:   rec,
		metrics: metrics.OrNoop(m),
		log:     log,
		now:     time.Now,
	}
}

func (e *EscalasService) Enabled() bool {
	return e.flags.Enabled(Escalas)
}

// Save validates entry against its scale definition and stores it. ID and
// RecordedAt are assigned here.
func (e *EscalasService) Save(ctx context.Context, entry ScaleEntry) (ScaleEntry, error) {
	if !e.Enabled() {
		return ScaleEntry{}, ErrDisabled
	}
	entry.PatientID = strings.TrimSpace(entry.PatientID)
	entry.Scale = strings.ToLower(strings.TrimSpace(entry.Scale))
	if entry.PatientID == "" || entry.Scale == "" {
		return ScaleEntry{}, fmt.Errorf("%w: patientId and scale are required", ErrInvalid)
	}
	def, err := e.scales.Get(entry.Scale)
	if err != nil {
		if errors.Is(err, scales.ErrNotFound) {
			return ScaleEntry{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return ScaleEntry{}, err
	}
	if lo, hi, ok := scoreRange(def); ok && (entry.Score < lo || entry.Score > hi) {
		return ScaleEntry{}, fmt.Errorf("%w: score %g outside %g..%g", ErrInvalid, entry.Score, lo, hi)
	}
	entry.ID = uuid.NewString()
	entry.RecordedAt = e.now().UTC()
	key, _ := draft.Key(e.prefix, draft.Context{EntityID: entry.PatientID, SubContext: entry.ID})
	state.Save(ctx, e.store, key, entry)
	e.log.Info("scale entry saved", zap.String("patient_id", entry.PatientID), zap.String("scale", entry.Scale), zap.Float64("score", entry.Score))
	kpi(e.audit, e.metrics, "escalas_save", "Observation", entry.PatientID, entry.RecordedAt, map[string]any{
		"scale": entry.Scale,
		"score": entry.Score,
	})
	return entry, nil
}

// Entries lists a patient's scale entries, oldest first.
func (e *EscalasService) Entries(ctx context.Context, patientID string) ([]ScaleEntry, error) {
	if !e.Enabled() {
		return nil, ErrDisabled
	}
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patientId is required", ErrInvalid)
	}
	out := []ScaleEntry{}
	for _, key := range e.store.Keys(ctx, e.prefix+"/"+url.PathEscape(patientID)+"/") {
		entry := state.Load(ctx, e.store, key, ScaleEntry{})
		if entry.ID == "" {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// scoreRange sums the min and max of every item in def. It reports false when
// the definition has no scored items.
func scoreRange(def scales.Definition) (float64, float64, bool) {
	items, ok := def["items"].([]any)
	if !ok || len(items) == 0 {
		return 0, 0, false
	}
	var lo, hi float64
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			return 0, 0, false
		}
		itemLo, okLo := number(item["min"])
		itemHi, okHi := number(item["max"])
		if !okLo || !okHi {
			return 0, 0, false
		}
		lo += itemLo
		hi += itemHi
	}
	return lo, hi, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
