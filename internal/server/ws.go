package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"nurseos/internal/draft"
	"nurseos/internal/fhir"
	"nurseos/internal/handover"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// command is one message from the handover screen.
type command struct {
	Type      string `json:"type"`
	PatientID string `json:"patientId,omitempty"`
	Shift     string `json:"shift,omitempty"`
	Field     string `json:"field,omitempty"`
	Value     string `json:"value,omitempty"`
	Label     string `json:"label,omitempty"`
	Text      string `json:"text,omitempty"`
}

type stateFrame struct {
	Type          string            `json:"type"`
	SessionID     string            `json:"sessionId"`
	Patients      []fhir.Patient    `json:"patients"`
	PatientID     string            `json:"patientId"`
	Shift         handover.Shift    `json:"shift"`
	Window        handover.Window   `json:"window"`
	Devices       []string          `json:"devices"`
	Fields        draft.Payload     `json:"fields"`
	DraftState    draft.State       `json:"draftState"`
	KPI           handover.KPI      `json:"kpi"`
	Notices       []handover.Notice `json:"notices"`
	Presets       []handover.Preset `json:"presets,omitempty"`
	DeviceOptions []string          `json:"deviceOptions,omitempty"`
	Text          string            `json:"text,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func (s *Server) handleHandoverWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("ws accept failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusInternalError, "closing") }()

	ctx := r.Context()
	sess := handover.NewSession(handover.Deps{
		Store:       s.deps.Store,
		Upstream:    s.deps.Upstream,
		Strategies:  s.deps.Strategies,
		Alerts:      s.deps.Alerts,
		Audit:       s.deps.Audit,
		Log:         s.log,
		Metrics:     s.deps.Metrics,
		DraftPrefix: s.deps.DraftPrefix,
	})
	log := s.log.With(zap.String("session_id", sess.ID()))
	log.Info("handover session opened")

	sess.LoadPatients(ctx)
	first := s.frame(sess)
	first.Presets = handover.Presets
	first.DeviceOptions = fhir.DefaultDevices
	if err := writeWS(ctx, conn, first); err != nil {
		log.Debug("ws write failed", zap.Error(err))
		return
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			logSessionEnd(log, err)
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			frame := s.frame(sess)
			frame.Error = "invalid command: " + err.Error()
			if err := writeWS(ctx, conn, frame); err != nil {
				return
			}
			continue
		}
		frame := s.apply(ctx, sess, cmd)
		if err := writeWS(ctx, conn, frame); err != nil {
			log.Debug("ws write failed", zap.Error(err))
			return
		}
	}
}

// apply runs one command against the session and renders the resulting state.
func (s *Server) apply(ctx context.Context, sess *handover.Session, cmd command) stateFrame {
	var (
		err      error
		withText bool
	)
	switch cmd.Type {
	case "select_patient":
		sess.SelectPatient(ctx, cmd.PatientID)
	case "select_shift":
		var shift handover.Shift
		shift, err = handover.ParseShift(cmd.Shift)
		if err == nil {
			sess.SelectShift(ctx, shift)
		}
	case "edit":
		err = sess.Edit(ctx, cmd.Field, cmd.Value)
	case "append":
		err = sess.AppendText(ctx, cmd.Field, cmd.Text)
	case "preset":
		err = sess.ApplyPreset(ctx, cmd.Label)
	case "dictate":
		err = sess.Dictate(ctx, cmd.Field, cmd.Text)
	case "save":
		// Save reports its own outcome as a notice.
		if saveErr := sess.Save(ctx); saveErr != nil && !errors.Is(saveErr, handover.ErrNoPatient) {
			s.log.Debug("handover save failed", zap.String("session_id", sess.ID()), zap.Error(saveErr))
		}
	case "text":
		withText = true
	case "patients":
		sess.LoadPatients(ctx)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Type)
	}
	frame := s.frame(sess)
	if err != nil {
		frame.Error = err.Error()
	}
	if withText {
		frame.Text = sess.Text()
	}
	return frame
}

func (s *Server) frame(sess *handover.Session) stateFrame {
	notices := sess.DrainNotices()
	if notices == nil {
		notices = []handover.Notice{}
	}
	return stateFrame{
		Type:       "state",
		SessionID:  sess.ID(),
		Patients:   sess.Patients(),
		PatientID:  sess.PatientID(),
		Shift:      sess.Shift(),
		Window:     sess.Shift().Window(),
		Devices:    sess.Devices(),
		Fields:     sess.Fields(),
		DraftState: sess.DraftState(),
		KPI:        sess.KPI(),
		Notices:    notices,
	}
}

func logSessionEnd(log *zap.Logger, err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		log.Info("handover session closed", zap.Int("status", int(status)))
		return
	}
	if errors.Is(err, context.Canceled) {
		log.Info("handover session closed", zap.Error(err))
		return
	}
	log.Warn("handover session ended", zap.Error(err))
}

func writeWS(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
