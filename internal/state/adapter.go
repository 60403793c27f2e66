package state

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"nurseos/internal/metrics"

	"go.uber.org/zap"
)

var errNoBackend = errors.New("persistent backend unavailable")

// Adapter presents one get/set/remove surface over an optional primary Store.
// Whenever the primary is missing or fails, the call is served from a map
// owned by the adapter. No method returns an error.
//
// A memory entry shadows the primary for its key: a write or delete the
// primary refused stays authoritative until a later primary write or delete
// for that key succeeds.
type Adapter struct {
	primary Store
	log     *zap.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	mem       map[string]shadow
	fallbacks atomic.Uint64
}

// shadow is a value the primary did not accept, or a tombstone for a delete
// it did not accept.
type shadow struct {
	value   string
	removed bool
}

// NewAdapter wraps primary, which may be nil.
func NewAdapter(primary Store, log *zap.Logger, m *metrics.Metrics) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		primary: primary,
		log:     log,
		metrics: metrics.OrNoop(m),
		mem:     make(map[string]shadow),
	}
}

// Persistent reports whether a primary backend is configured.
func (a *Adapter) Persistent() bool {
	return a.primary != nil
}

func (a *Adapter) GetItem(ctx context.Context, key string) (string, bool) {
	a.mu.Lock()
	entry, shadowed := a.mem[key]
	a.mu.Unlock()
	if shadowed {
		if entry.removed {
			return "", false
		}
		return entry.value, true
	}
	if a.primary == nil {
		return "", false
	}
	value, ok, err := a.primary.Get(ctx, key)
	if err != nil {
		a.fellBack("get", key, err)
		return "", false
	}
	return value, ok
}

func (a *Adapter) SetItem(ctx context.Context, key, value string) {
	err := errNoBackend
	if a.primary != nil {
		err = a.primary.Set(ctx, key, value)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.mem, key)
		return
	}
	if a.primary != nil {
		a.fellBack("set", key, err)
	}
	a.mem[key] = shadow{value: value}
}

// RemoveItem deletes key everywhere it may live. Removing an absent key is a
// no-op.
func (a *Adapter) RemoveItem(ctx context.Context, key string) {
	var err error
	if a.primary != nil {
		err = a.primary.Delete(ctx, key)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.mem, key)
		return
	}
	a.fellBack("remove", key, err)
	a.mem[key] = shadow{removed: true}
}

// Keys returns the sorted, de-duplicated keys starting with prefix.
func (a *Adapter) Keys(ctx context.Context, prefix string) []string {
	seen := make(map[string]struct{})
	if lister, ok := a.primary.(Lister); ok {
		keys, err := lister.Keys(ctx, prefix)
		if err != nil {
			a.fellBack("keys", prefix, err)
		}
		for _, key := range keys {
			seen[key] = struct{}{}
		}
	}
	a.mu.Lock()
	for key, entry := range a.mem {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if entry.removed {
			delete(seen, key)
			continue
		}
		seen[key] = struct{}{}
	}
	a.mu.Unlock()
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (a *Adapter) Close() error {
	if a.primary == nil {
		return nil
	}
	return a.primary.Close()
}

func (a *Adapter) fellBack(op, key string, err error) {
	a.metrics.StoreFallbacks.Inc()
	if a.fallbacks.Add(1) == 1 {
		a.log.Warn("store backend failed, using memory fallback", zap.String("op", op), zap.String("key", key), zap.Error(err))
		return
	}
	a.log.Debug("store backend failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
}
