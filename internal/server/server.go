// Package server exposes the ward API and the handover websocket.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"nurseos/internal/audit"
	"nurseos/internal/features"
	"nurseos/internal/handover"
	"nurseos/internal/metrics"
	"nurseos/internal/scales"
	"nurseos/internal/state"

	"go.uber.org/zap"
)

// AuditLog is the synchronous side of the audit writer.
type AuditLog interface {
	audit.Recorder
	Insert(ctx context.Context, ev audit.Event) (int64, error)
	List(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

type Deps struct {
	Store       *state.Adapter
	Upstream    handover.Upstream
	Strategies  []handover.CommitStrategy
	Alerts      handover.Alerter
	Audit       AuditLog
	Scales      *scales.Registry
	Flags       features.Flags
	BCMA        *features.BCMAService
	Escalas     *features.EscalasService
	DraftPrefix string
	Log         *zap.Logger
	Metrics     *metrics.Metrics
}

type Server struct {
	deps Deps
	log  *zap.Logger
	mux  *http.ServeMux
}

func New(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	deps.Metrics = metrics.OrNoop(deps.Metrics)
	s := &Server{deps: deps, log: deps.Log, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /api/patients", s.handlePatients)
	s.mux.HandleFunc("GET /api/patients/{id}/devices", s.handleDevices)
	s.mux.HandleFunc("GET /api/scales", s.handleScales)
	s.mux.HandleFunc("GET /api/scales/{name}", s.handleScale)
	s.mux.HandleFunc("GET /api/features", s.handleFeatures)
	s.mux.HandleFunc("POST /api/bcma/drafts", s.handleCreateBCMADraft)
	s.mux.HandleFunc("GET /api/bcma/drafts", s.handleListBCMADrafts)
	s.mux.HandleFunc("POST /api/escalas", s.handleSaveEscala)
	s.mux.HandleFunc("GET /api/escalas", s.handleListEscalas)
	s.mux.HandleFunc("POST /api/audit", s.handleAudit)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /ws/handover", s.handleHandoverWS)
}

func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack is required by the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
