// Package audit persists handover and KPI events to Postgres.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"nurseos/internal/config"
	"nurseos/internal/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	defaultLimit = 100
	maxLimit     = 1000
)

var ErrDisabled = errors.New("audit is disabled")

type Event struct {
	ID           int64          `json:"id,omitempty"`
	Time         time.Time      `json:"ts"`
	Status       string         `json:"status"`
	Category     string         `json:"category"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Action       string         `json:"action"`
	Data         map[string]any `json:"data,omitempty"`
}

// Recorder accepts events without blocking the caller.
type Recorder interface {
	Record(ev Event)
}

type Filter struct {
	Status       string
	Category     string
	ResourceType string
	Limit        int
}

type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	schema  string
	events  chan Event
	started atomic.Bool
	dropped atomic.Uint64
}

// New opens the audit database. It returns a nil Writer when auditing is
// disabled; every method of a nil Writer is a no-op.
func New(cfg config.AuditConfig, log *zap.Logger, m *metrics.Metrics) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("audit dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit ping: %w", err)
	}
	w := newWriter(db, schema, cfg.QueueSize, log, m)
	if err := w.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit schema: %w", err)
	}
	return w, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger, m *metrics.Metrics) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:      db,
		log:     log,
		metrics: metrics.OrNoop(m),
		schema:  schema,
		events:  make(chan Event, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Record queues ev for the background writer, dropping it when the queue is
// full.
func (w *Writer) Record(ev Event) {
	if w == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	select {
	case w.events <- ev:
	default:
		w.metrics.AuditDropped.Inc()
		if w.dropped.Add(1) == 1 {
			w.log.Warn("audit queue full, dropping events")
		}
	}
}

// Insert writes ev synchronously and returns its id.
func (w *Writer) Insert(ctx context.Context, ev Event) (int64, error) {
	if w == nil || w.db == nil {
		return 0, ErrDisabled
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	data, err := encodeData(ev.Data)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, status, category, resource_type, resource_id, action, data)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, w.table())
	var id int64
	err = w.db.QueryRowContext(ctx, query,
		ev.Time,
		ev.Status,
		ev.Category,
		ev.ResourceType,
		nullString(ev.ResourceID),
		ev.Action,
		data,
	).Scan(&id)
	return id, err
}

// List returns the newest events matching f.
func (w *Writer) List(ctx context.Context, f Filter) ([]Event, error) {
	if w == nil || w.db == nil {
		return nil, ErrDisabled
	}
	query, args := buildListQuery(w.table(), f)
	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]Event, 0)
	for rows.Next() {
		var (
			ev         Event
			resourceID sql.NullString
			data       []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Time, &ev.Status, &ev.Category, &ev.ResourceType, &resourceID, &ev.Action, &data); err != nil {
			return nil, err
		}
		ev.ResourceID = resourceID.String
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev.Data); err != nil {
				w.log.Debug("audit event data does not decode", zap.Int64("id", ev.ID), zap.Error(err))
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.events:
			if _, err := w.Insert(ctx, ev); err != nil {
				w.log.Warn("audit insert failed", zap.String("action", ev.Action), zap.Error(err))
			}
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		category TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT,
		action TEXT NOT NULL,
		data JSONB
	)`, w.table())); err != nil {
		return err
	}
	return w.exec(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS event_log_ts_idx ON %s (ts DESC)", w.table()))
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table() string {
	return w.schema + ".event_log"
}

func buildListQuery(table string, f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("status", f.Status)
	add("category", f.Category)
	add("resource_type", f.ResourceType)

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := fmt.Sprintf("SELECT id, ts, status, category, resource_type, resource_id, action, data FROM %s", table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d", len(args))
	return query, args
}

func encodeData(data map[string]any) (any, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
