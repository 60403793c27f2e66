package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"nurseos/internal/metrics"
	"nurseos/internal/state"

	"go.uber.org/zap"
)

var (
	ErrUnknownField = errors.New("unknown draft field")
	ErrNoContext    = errors.New("no draft context selected")
)

// Manager keeps the fields of one editing session in sync with the draft
// persisted for the current context. A Manager belongs to a single session;
// the mutex only guards against readers such as status handlers.
type Manager struct {
	store   *state.Adapter
	prefix  string
	fields  []string
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	state  State
	ctx    Context
	key    string
	values Payload
}

type Option func(*Manager)

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics.OrNoop(mx)
	}
}

// NewManager binds a session to store. Drafts are written under prefix and
// carry exactly the named fields.
func NewManager(store *state.Adapter, prefix string, fields []string, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		prefix:  prefix,
		fields:  append([]string(nil), fields...),
		log:     zap.NewNop(),
		metrics: metrics.NewNoop(),
		state:   StateNoContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.values = m.blank()
	return m
}

// SetContext switches the session to c. Without an entity the fields are
// blanked and nothing is persisted; otherwise the stored draft for c is
// restored, or the fields are blanked when there is none.
func (m *Manager) SetContext(ctx context.Context, c Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := Key(m.prefix, c)
	if !ok {
		m.ctx = Context{}
		m.key = ""
		m.values = m.blank()
		m.state = nextState(m.state, EventContextCleared)
		return
	}
	m.ctx = c
	m.key = key
	m.state = nextState(m.state, EventContextSet)

	stored := state.Load[map[string]any](ctx, m.store, key, nil)
	values := m.blank()
	if stored != nil {
		for _, field := range m.fields {
			if s, ok := stored[field].(string); ok {
				values[field] = s
			}
		}
		m.metrics.DraftsRestored.Inc()
		m.log.Debug("draft restored", zap.String("key", key))
	}
	m.values = values
	m.state = nextState(m.state, EventLoaded)
}

// Set replaces one field and persists the whole payload when a context is
// selected.
func (m *Manager) Set(ctx context.Context, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known(field) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	m.values[field] = value
	m.persist(ctx)
	return nil
}

// Append adds text to field on a new line. Blank text is ignored.
func (m *Manager) Append(ctx context.Context, field, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known(field) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if current := m.values[field]; current != "" {
		m.values[field] = current + "\n" + text
	} else {
		m.values[field] = text
	}
	m.persist(ctx)
	return nil
}

// Commit hands the current payload to fn. When fn succeeds the stored draft is
// removed and the fields are blanked; when it fails the draft is kept and the
// error returned unchanged.
func (m *Manager) Commit(ctx context.Context, fn func(context.Context, Payload) error) error {
	m.mu.Lock()
	key := m.key
	payload := m.values.clone()
	m.mu.Unlock()
	if key == "" {
		return ErrNoContext
	}
	if err := fn(ctx, payload); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.RemoveItem(ctx, key)
	m.metrics.DraftsCleared.Inc()
	if m.key == key {
		m.values = m.blank()
		m.state = nextState(m.state, EventCommitted)
	}
	return nil
}

func (m *Manager) Values() Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values.clone()
}

func (m *Manager) Value(field string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[field]
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Context() Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// Key is the storage key of the current context, empty without one.
func (m *Manager) Key() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key
}

func (m *Manager) Fields() []string {
	return append([]string(nil), m.fields...)
}

// persist must be called with m.mu held.
func (m *Manager) persist(ctx context.Context) {
	if m.key == "" {
		return
	}
	state.Save(ctx, m.store, m.key, m.values)
	m.metrics.DraftsSaved.Inc()
	m.state = nextState(m.state, EventEdited)
}

func (m *Manager) known(field string) bool {
	for _, f := range m.fields {
		if f == field {
			return true
		}
	}
	return false
}

func (m *Manager) blank() Payload {
	out := make(Payload, len(m.fields))
	for _, f := range m.fields {
		out[f] = ""
	}
	return out
}
