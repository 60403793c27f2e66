package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nurseos/internal/audit"
	"nurseos/internal/config"
	"nurseos/internal/draft"
	"nurseos/internal/features"
	"nurseos/internal/fhir"
	"nurseos/internal/scales"
	"nurseos/internal/state"

	"nhooyr.io/websocket"
)

type fakeUpstream struct {
	mu            sync.Mutex
	patients      []fhir.Patient
	err           error
	structuredErr error
	saved         []fhir.Document
	positional    int
}

func (f *fakeUpstream) ListPatients(context.Context) ([]fhir.Patient, error) {
	return f.patients, f.err
}

func (f *fakeUpstream) ListDevices(context.Context, string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{"CVC"}, nil
}

func (f *fakeUpstream) SaveDocument(_ context.Context, doc fhir.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, doc)
	return f.structuredErr
}

func (f *fakeUpstream) SaveDocumentPositional(context.Context, string, string, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positional++
	return nil
}

func (f *fakeUpstream) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved), f.positional
}

type fakeAudit struct {
	mu       sync.Mutex
	recorded []audit.Event
	inserted []audit.Event
	filter   audit.Filter
}

func (f *fakeAudit) Record(ev audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, ev)
}

func (f *fakeAudit) Insert(_ context.Context, ev audit.Event) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, ev)
	return int64(len(f.inserted)), nil
}

func (f *fakeAudit) List(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	return append([]audit.Event{}, f.inserted...), nil
}

func newTestServer(t *testing.T, up *fakeUpstream, enabled map[string]bool) (*httptest.Server, *state.Adapter, *fakeAudit) {
	t.Helper()
	store := state.NewAdapter(nil, nil, nil)
	rec := &fakeAudit{}
	flags := features.NewFlags(&config.Config{Features: enabled})
	reg := scales.NewRegistry(map[string]scales.Definition{"eva": {"title": "EVA"}})
	srv := New(Deps{
		Store:    store,
		Upstream: up,
		Audit:    rec,
		Scales:   reg,
		Flags:    flags,
		BCMA:     features.NewBCMA(flags, store, "", rec, nil, nil),
		Escalas:  features.NewEscalas(flags, reg, store, "", rec, nil, nil),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store, rec
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeUpstream{}, nil)
	var body map[string]bool
	if code := getJSON(t, ts.URL+"/api/healthz", &body); code != http.StatusOK || !body["ok"] {
		t.Fatalf("unexpected healthz %d %v", code, body)
	}
}

func TestPatientsProxy(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeUpstream{patients: []fhir.Patient{{ID: "A"}}}, nil)
	var patients []fhir.Patient
	if code := getJSON(t, ts.URL+"/api/patients", &patients); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(patients) != 1 || patients[0].ID != "A" {
		t.Fatalf("unexpected patients %+v", patients)
	}
	var devices []string
	if code := getJSON(t, ts.URL+"/api/patients/A/devices", &devices); code != http.StatusOK || len(devices) != 1 {
		t.Fatalf("unexpected devices %d %v", code, devices)
	}
}

func TestPatientsUpstreamFailure(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeUpstream{err: errors.New("down")}, nil)
	if code := getJSON(t, ts.URL+"/api/patients", nil); code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", code)
	}
}

func TestScalesEndpoints(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeUpstream{}, nil)
	var names []string
	if code := getJSON(t, ts.URL+"/api/scales", &names); code != http.StatusOK || len(names) != 1 || names[0] != "eva" {
		t.Fatalf("unexpected scales %d %v", code, names)
	}
	var def map[string]any
	if code := getJSON(t, ts.URL+"/api/scales/EVA", &def); code != http.StatusOK || def["title"] != "EVA" {
		t.Fatalf("unexpected scale %d %v", code, def)
	}
	if code := getJSON(t, ts.URL+"/api/scales/norton", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestDisabledFeaturesAnswerNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeUpstream{}, nil)
	if code := postJSON(t, ts.URL+"/api/bcma/drafts", map[string]string{"patientId": "A", "medication": "x"}, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code := postJSON(t, ts.URL+"/api/escalas", map[string]any{"patientId": "A", "scale": "eva"}, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	var flags map[string]bool
	if code := getJSON(t, ts.URL+"/api/features", &flags); code != http.StatusOK || flags["bcma"] || flags["escalas"] {
		t.Fatalf("unexpected features %d %v", code, flags)
	}
}

func TestBCMADrafts(t *testing.T) {
	ts, _, rec := newTestServer(t, &fakeUpstream{}, map[string]bool{"bcma": true})
	var created features.AdminDraft
	if code := postJSON(t, ts.URL+"/api/bcma/drafts", map[string]string{"patientId": "A", "medication": "Ejemplo"}, &created); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if created.Status != "draft" || created.Medication != "Ejemplo" {
		t.Fatalf("unexpected draft %+v", created)
	}
	var drafts []features.AdminDraft
	if code := getJSON(t, ts.URL+"/api/bcma/drafts?patientId=A", &drafts); code != http.StatusOK || len(drafts) != 1 || drafts[0].ID != created.ID {
		t.Fatalf("unexpected drafts %d %+v", code, drafts)
	}
	if code := postJSON(t, ts.URL+"/api/bcma/drafts", map[string]string{"patientId": "A"}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if len(rec.recorded) != 1 || rec.recorded[0].Action != "bcma_draft" {
		t.Fatalf("unexpected kpi events %+v", rec.recorded)
	}
}

func TestEscalasSave(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeUpstream{}, map[string]bool{"ESCALAS": true})
	var saved features.ScaleEntry
	if code := postJSON(t, ts.URL+"/api/escalas", map[string]any{"patientId": "A", "scale": "eva", "score": 4}, &saved); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if saved.ID == "" || saved.Score != 4 {
		t.Fatalf("unexpected entry %+v", saved)
	}
	if code := postJSON(t, ts.URL+"/api/escalas", map[string]any{"patientId": "A", "scale": "norton"}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestAuditAndEvents(t *testing.T) {
	ts, _, rec := newTestServer(t, &fakeUpstream{}, nil)
	var out map[string]any
	if code := postJSON(t, ts.URL+"/api/audit", map[string]any{"action": "print"}, &out); code != http.StatusOK || out["ok"] != true {
		t.Fatalf("unexpected audit response %d %v", code, out)
	}
	if len(rec.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(rec.inserted))
	}
	ev := rec.inserted[0]
	if ev.Status != "ok" || ev.Category != "handover" || ev.ResourceType != "DocumentReference" {
		t.Fatalf("defaults not applied: %+v", ev)
	}
	if code := postJSON(t, ts.URL+"/api/audit", map[string]any{"status": "ok"}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without action, got %d", code)
	}

	var events []audit.Event
	if code := getJSON(t, ts.URL+"/api/events?status=ok&category=handover&limit=5", &events); code != http.StatusOK || len(events) != 1 {
		t.Fatalf("unexpected events %d %+v", code, events)
	}
	if rec.filter.Status != "ok" || rec.filter.Category != "handover" || rec.filter.Limit != 5 {
		t.Fatalf("unexpected filter %+v", rec.filter)
	}
	if code := getJSON(t, ts.URL+"/api/events?limit=abc", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", code)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) stateFrame {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame stateFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, cmd command) stateFrame {
	t.Helper()
	if err := writeWS(ctx, conn, cmd); err != nil {
		t.Fatalf("write %s: %v", cmd.Type, err)
	}
	return readFrame(t, ctx, conn)
}

func TestHandoverWebsocketFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	up := &fakeUpstream{patients: []fhir.Patient{{ID: "A", Display: "Ana"}}, structuredErr: errors.New("422")}
	ts, store, _ := newTestServer(t, up, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/handover"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	first := readFrame(t, ctx, conn)
	if first.Type != "state" || len(first.Patients) != 1 || len(first.Presets) == 0 || len(first.DeviceOptions) == 0 {
		t.Fatalf("unexpected first frame %+v", first)
	}
	if first.DraftState != draft.StateNoContext {
		t.Fatalf("expected no context, got %s", first.DraftState)
	}

	frame := send(t, ctx, conn, command{Type: "select_patient", PatientID: "A"})
	if frame.DraftState != draft.StateEditing || len(frame.Devices) != 1 {
		t.Fatalf("unexpected frame after select %+v", frame)
	}
	frame = send(t, ctx, conn, command{Type: "edit", Field: "evolucion", Value: "estable"})
	if frame.Fields["evolucion"] != "estable" {
		t.Fatalf("edit not applied %+v", frame.Fields)
	}
	if _, ok := store.GetItem(ctx, draft.DefaultPrefix+"/A/dia"); !ok {
		t.Fatalf("expected draft persisted")
	}
	frame = send(t, ctx, conn, command{Type: "text"})
	if !strings.Contains(frame.Text, "Paciente: Ana") || !strings.Contains(frame.Text, "estable") {
		t.Fatalf("unexpected text:\n%s", frame.Text)
	}
	frame = send(t, ctx, conn, command{Type: "edit", Field: "bogus", Value: "x"})
	if frame.Error == "" {
		t.Fatalf("expected error for unknown field")
	}

	frame = send(t, ctx, conn, command{Type: "save"})
	if len(frame.Notices) != 1 || frame.Notices[0].Message != "Entrega guardada en historial del paciente" {
		t.Fatalf("unexpected notices %+v", frame.Notices)
	}
	if frame.DraftState != draft.StateCommitted || frame.Fields["evolucion"] != "" {
		t.Fatalf("unexpected frame after save %+v", frame)
	}
	if structured, positional := up.calls(); structured != 1 || positional != 1 {
		t.Fatalf("expected structured then positional, got %d/%d", structured, positional)
	}
	if _, ok := store.GetItem(ctx, draft.DefaultPrefix+"/A/dia"); ok {
		t.Fatalf("expected draft cleared")
	}

	frame = send(t, ctx, conn, command{Type: "unknown"})
	if frame.Error == "" {
		t.Fatalf("expected error for unknown command")
	}
}
