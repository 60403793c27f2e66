package handover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"nurseos/internal/audit"
	"nurseos/internal/draft"
	"nurseos/internal/fhir"
	"nurseos/internal/metrics"
	"nurseos/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoPatient     = errors.New("no patient selected")
	ErrUnknownPreset = errors.New("unknown preset")
)

// Upstream is the patient directory and document store.
type Upstream interface {
	DocumentWriter
	ListPatients(ctx context.Context) ([]fhir.Patient, error)
	ListDevices(ctx context.Context, patientID string) ([]string, error)
}

// Alerter is told about handovers that could not be committed.
type Alerter interface {
	HandoverFailed(ctx context.Context, patientID, shift string, cause error)
}

type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
	NoticeInfo    NoticeLevel = "info"
)

// Notice is a message for the nurse, shown as a toast by the UI.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

type Deps struct {
	Store      *state.Adapter
	Upstream   Upstream
	Strategies []CommitStrategy
	Alerts     Alerter
	Audit      audit.Recorder
	Log        *zap.Logger
	Metrics    *metrics.Metrics
	// DraftPrefix defaults to draft.DefaultPrefix.
	DraftPrefix string
	Now         func() time.Time
}

// Session is one nurse's handover screen. It is driven by a single caller at
// a time and is not safe for concurrent use.
type Session struct {
	id         string
	drafts     *draft.Manager
	upstream   Upstream
	strategies []CommitStrategy
	alerts     Alerter
	audit      audit.Recorder
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	started     time.Time
	patients    []fhir.Patient
	patientID   string
	shift       Shift
	devices     []string
	presetsUsed int
	voiceChars  int
	notices     []Notice
}

func NewSession(deps Deps) *Session {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	prefix := deps.DraftPrefix
	if prefix == "" {
		prefix = draft.DefaultPrefix
	}
	strategies := deps.Strategies
	if strategies == nil && deps.Upstream != nil {
		strategies = DefaultStrategies(deps.Upstream)
	}
	id := uuid.NewString()
	log = log.With(zap.String("session_id", id))
	m := metrics.OrNoop(deps.Metrics)
	return &Session{
		id:         id,
		drafts:     draft.NewManager(deps.Store, prefix, Fields, draft.WithLogger(log), draft.WithMetrics(m)),
		upstream:   deps.Upstream,
		strategies: strategies,
		alerts:     deps.Alerts,
		audit:      deps.Audit,
		log:        log,
		metrics:    m,
		now:        now,
		started:    now(),
		shift:      ShiftDay,
		devices:    []string{},
		patients:   []fhir.Patient{},
	}
}

func (s *Session) ID() string { return s.id }

// LoadPatients refreshes the patient list. A failure leaves the list empty
// and raises an error notice.
func (s *Session) LoadPatients(ctx context.Context) {
	patients, err := s.upstream.ListPatients(ctx)
	if err != nil {
		s.metrics.UpstreamFailures.Inc()
		s.log.Warn("patient list failed", zap.Error(err))
		s.patients = []fhir.Patient{}
		s.notify(NoticeError, fmt.Sprintf("No se pudieron cargar pacientes: %v", err))
		return
	}
	if patients == nil {
		patients = []fhir.Patient{}
	}
	s.patients = patients
}

// SelectPatient switches the patient; an empty id clears the selection.
func (s *Session) SelectPatient(ctx context.Context, patientID string) {
	s.patientID = strings.TrimSpace(patientID)
	s.enterContext(ctx)
}

func (s *Session) SelectShift(ctx context.Context, shift Shift) {
	if shift != ShiftNight {
		shift = ShiftDay
	}
	s.shift = shift
	s.enterContext(ctx)
}

func (s *Session) enterContext(ctx context.Context) {
	if s.patientID == "" {
		s.devices = []string{}
		s.drafts.SetContext(ctx, draft.Context{})
		return
	}
	devices, err := s.upstream.ListDevices(ctx, s.patientID)
	if err != nil {
		s.metrics.UpstreamFailures.Inc()
		s.log.Warn("device list failed", zap.String("patient_id", s.patientID), zap.Error(err))
		s.notify(NoticeError, fmt.Sprintf("No se pudieron cargar dispositivos: %v", err))
		devices = nil
	}
	if devices == nil {
		devices = []string{}
	}
	s.devices = devices
	s.drafts.SetContext(ctx, draft.Context{EntityID: s.patientID, SubContext: string(s.shift)})
}

// Edit replaces a field, as typing in its text area does.
func (s *Session) Edit(ctx context.Context, field, value string) error {
	return s.drafts.Set(ctx, field, value)
}

// AppendText adds a snippet to a field and counts it as a shortcut use.
func (s *Session) AppendText(ctx context.Context, field, text string) error {
	before := s.drafts.Value(field)
	if err := s.drafts.Append(ctx, field, text); err != nil {
		return err
	}
	if s.drafts.Value(field) != before {
		s.presetsUsed++
	}
	return nil
}

func (s *Session) ApplyPreset(ctx context.Context, label string) error {
	p, ok := FindPreset(label)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, label)
	}
	return s.AppendText(ctx, p.Target, p.Text)
}

// Dictate appends transcribed speech to a field.
func (s *Session) Dictate(ctx context.Context, field, text string) error {
	before := s.drafts.Value(field)
	if err := s.drafts.Append(ctx, field, text); err != nil {
		return err
	}
	if s.drafts.Value(field) != before {
		s.voiceChars += utf8.RuneCountInString(text)
	}
	return nil
}

// Save commits the handover document upstream. On success the draft is
// cleared; on failure it is kept so the nurse can retry.
func (s *Session) Save(ctx context.Context) error {
	if s.patientID == "" {
		s.notify(NoticeError, "Selecciona paciente")
		return ErrNoPatient
	}
	req := CommitRequest{PatientID: s.patientID, Shift: s.shift, Content: s.Text()}
	var used string
	err := s.drafts.Commit(ctx, func(ctx context.Context, _ draft.Payload) error {
		name, err := commitInOrder(ctx, s.strategies, req)
		used = name
		return err
	})
	if errors.Is(err, draft.ErrNoContext) {
		s.notify(NoticeError, "Selecciona paciente")
		return ErrNoPatient
	}
	if err != nil {
		s.metrics.CommitsFailed.Inc()
		shown := err
		var commitErr *CommitError
		if errors.As(err, &commitErr) {
			shown = commitErr.Last()
		}
		s.log.Warn("handover commit failed", zap.String("patient_id", s.patientID), zap.String("shift", string(s.shift)), zap.Error(err))
		s.notify(NoticeError, fmt.Sprintf("No se pudo guardar: %v", shown))
		if s.alerts != nil {
			s.alerts.HandoverFailed(ctx, s.patientID, string(s.shift), shown)
		}
		s.record("error", map[string]any{"shift": string(s.shift), "error": err.Error()})
		return err
	}
	s.metrics.CommitsSucceeded.Inc()
	if len(s.strategies) > 0 && used != s.strategies[0].Name {
		s.metrics.CommitFallbacks.Inc()
	}
	s.log.Info("handover committed", zap.String("patient_id", s.patientID), zap.String("shift", string(s.shift)), zap.String("strategy", used))
	s.notify(NoticeSuccess, "Entrega guardada en historial del paciente")
	s.record("ok", map[string]any{"shift": string(s.shift), "strategy": used, "words": CountWords(req.Content)})
	return nil
}

// Text renders the handover document for the current state.
func (s *Session) Text() string {
	return BuildText(s.selected(), s.shift, s.devices, s.drafts.Values())
}

func (s *Session) KPI() KPI {
	return computeKPI(s.now().Sub(s.started), s.drafts.Values(), s.voiceChars, len(s.devices), s.presetsUsed)
}

// DrainNotices returns and forgets the pending notices.
func (s *Session) DrainNotices() []Notice {
	out := s.notices
	s.notices = nil
	return out
}

func (s *Session) PatientID() string        { return s.patientID }
func (s *Session) Shift() Shift             { return s.shift }
func (s *Session) Devices() []string        { return append([]string{}, s.devices...) }
func (s *Session) Patients() []fhir.Patient { return append([]fhir.Patient{}, s.patients...) }
func (s *Session) Fields() draft.Payload    { return s.drafts.Values() }
func (s *Session) DraftState() draft.State  { return s.drafts.State() }
func (s *Session) DraftKey() string         { return s.drafts.Key() }

func (s *Session) selected() fhir.Patient {
	for _, p := range s.patients {
		if p.ID == s.patientID {
			return p
		}
	}
	return fhir.Patient{ID: s.patientID}
}

func (s *Session) notify(level NoticeLevel, message string) {
	s.notices = append(s.notices, Notice{Level: level, Message: message})
}

func (s *Session) record(status string, data map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(audit.Event{
		Time:         s.now().UTC(),
		Status:       status,
		Category:     "handover",
		ResourceType: "DocumentReference",
		ResourceID:   s.patientID,
		Action:       "handover_save",
		Data:         data,
	})
}
