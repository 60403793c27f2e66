package features

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"nurseos/internal/audit"
	"nurseos/internal/draft"
	"nurseos/internal/metrics"
	"nurseos/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultBCMAPrefix = "nurseos/bcma/draft"

// AdminDraft is a medication administration record that has not been
// scanned and confirmed yet.
type AdminDraft struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patientId"`
	Medication string    `json:"medication"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

type BCMAService struct {
	flags   Flags
	store   *state.Adapter
	prefix  string
	audit   audit.Recorder
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewBCMA(flags Flags, store *state.Adapter, prefix string, rec audit.Recorder, m *metrics.Metrics, log *zap.Logger) *BCMAService {
	if prefix == "" {
		prefix = DefaultBCMAPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BCMAService{
		flags:   flags,
		store:   store,
		prefix:  prefix,
		audit:   rec,
		metrics: metrics.OrNoop(m),
		log:     log,
		now:     time.Now,
	}
}

func (b *BCMAService) Enabled() bool {
	return b.flags.Enabled(BCMA)
}

// CreateDraft stores a new administration draft for a patient.
func (b *BCMAService) CreateDraft(ctx context.Context, patientID, medication string) (AdminDraft, error) {
	if !b.Enabled() {
		return AdminDraft{}, ErrDisabled
	}
	patientID = strings.TrimSpace(patientID)
	medication = strings.TrimSpace(medication)
	if patientID == "" || medication == "" {
		return AdminDraft{}, fmt.Errorf("%w: patientId and medication are required", ErrInvalid)
	}
	d := AdminDraft{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		Medication: medication,
		Status:     "draft",
		CreatedAt:  b.now().UTC(),
	}
	key, _ := draft.Key(b.prefix, draft.Context{EntityID: patientID, SubContext: d.ID})
	state.Save(ctx, b.store, key, d)
	b.log.Info("bcma draft created", zap.String("patient_id", patientID), zap.String("draft_id", d.ID))
	kpi(b.audit, b.metrics, "bcma_draft", "MedicationAdministration", patientID, d.CreatedAt, map[string]any{
		"draft_id":   d.ID,
		"medication": medication,
	})
	return d, nil
}

// Drafts lists a patient's drafts, oldest first.
func (b *BCMAService) Drafts(ctx context.Context, patientID string) ([]AdminDraft, error) {
	if !b.Enabled() {
		return nil, ErrDisabled
	}
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patientId is required", ErrInvalid)
	}
	out := []AdminDraft{}
	for _, key := range b.store.Keys(ctx, b.prefix+"/"+url.PathEscape(patientID)+"/") {
		d := state.Load(ctx, b.store, key, AdminDraft{})
		if d.ID == "" {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
