package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"nurseos/internal/audit"
	"nurseos/internal/features"
	"nurseos/internal/scales"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request) {
	patients, err := s.deps.Upstream.ListPatients(r.Context())
	if err != nil {
		s.deps.Metrics.UpstreamFailures.Inc()
		s.log.Warn("patient list failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deps.Upstream.ListDevices(r.Context(), r.PathValue("id"))
	if err != nil {
		s.deps.Metrics.UpstreamFailures.Inc()
		s.log.Warn("device list failed", zap.String("patient_id", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleScales(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Scales.List())
}

func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	def, err := s.deps.Scales.Get(r.PathValue("name"))
	if err != nil {
		if errors.Is(err, scales.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Flags.All())
}

type bcmaDraftRequest struct {
	PatientID  string `json:"patientId"`
	Medication string `json:"medication"`
}

func (s *Server) handleCreateBCMADraft(w http.ResponseWriter, r *http.Request) {
	if s.deps.BCMA == nil || !s.deps.BCMA.Enabled() {
		writeError(w, http.StatusNotFound, features.ErrDisabled.Error())
		return
	}
	var req bcmaDraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.deps.BCMA.CreateDraft(r.Context(), req.PatientID, req.Medication)
	if err != nil {
		writeFeatureError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListBCMADrafts(w http.ResponseWriter, r *http.Request) {
	if s.deps.BCMA == nil || !s.deps.BCMA.Enabled() {
		writeError(w, http.StatusNotFound, features.ErrDisabled.Error())
		return
	}
	drafts, err := s.deps.BCMA.Drafts(r.Context(), r.URL.Query().Get("patientId"))
	if err != nil {
		writeFeatureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

func (s *Server) handleSaveEscala(w http.ResponseWriter, r *http.Request) {
	if s.deps.Escalas == nil || !s.deps.Escalas.Enabled() {
		writeError(w, http.StatusNotFound, features.ErrDisabled.Error())
		return
	}
	var entry features.ScaleEntry
	if !decodeBody(w, r, &entry) {
		return
	}
	saved, err := s.deps.Escalas.Save(r.Context(), entry)
	if err != nil {
		writeFeatureError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListEscalas(w http.ResponseWriter, r *http.Request) {
	if s.deps.Escalas == nil || !s.deps.Escalas.Enabled() {
		writeError(w, http.StatusNotFound, features.ErrDisabled.Error())
		return
	}
	entries, err := s.deps.Escalas.Entries(r.Context(), r.URL.Query().Get("patientId"))
	if err != nil {
		writeFeatureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type auditRequest struct {
	Action       string         `json:"action"`
	Status       string         `json:"status"`
	Category     string         `json:"category"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Data         map[string]any `json:"data"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		writeError(w, http.StatusServiceUnavailable, audit.ErrDisabled.Error())
		return
	}
	var req auditRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	ev := audit.Event{
		Status:       defaultString(req.Status, "ok"),
		Category:     defaultString(req.Category, "handover"),
		ResourceType: defaultString(req.ResourceType, "DocumentReference"),
		ResourceID:   req.ResourceID,
		Action:       req.Action,
		Data:         req.Data,
	}
	id, err := s.deps.Audit.Insert(r.Context(), ev)
	if err != nil {
		if errors.Is(err, audit.ErrDisabled) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "audit insert failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		writeError(w, http.StatusServiceUnavailable, audit.ErrDisabled.Error())
		return
	}
	q := r.URL.Query()
	f := audit.Filter{
		Status:       q.Get("status"),
		Category:     q.Get("category"),
		ResourceType: q.Get("resource_type"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		f.Limit = limit
	}
	events, err := s.deps.Audit.List(r.Context(), f)
	if err != nil {
		if errors.Is(err, audit.ErrDisabled) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.log.Warn("event list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return false
	}
	return true
}

func writeFeatureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, features.ErrDisabled):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, features.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
