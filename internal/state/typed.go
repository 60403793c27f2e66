package state

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Load decodes the JSON value stored at key into T. An absent key yields
// fallback. When the stored text is not valid JSON for T, the raw text is
// returned if T can hold a string (string, any, ...) and fallback otherwise.
func Load[T any](ctx context.Context, a *Adapter, key string, fallback T) T {
	raw, ok := a.GetItem(ctx, key)
	if !ok {
		return fallback
	}
	value, ok := decode[T](raw)
	if ok {
		return value
	}
	if asRaw, ok := any(raw).(T); ok {
		return asRaw
	}
	a.log.Debug("stored value does not decode", zap.String("key", key))
	return fallback
}

// Save stores strings verbatim and JSON-encodes everything else. Encoding
// failures are logged and nothing is written.
func Save[T any](ctx context.Context, a *Adapter, key string, value T) {
	if s, ok := any(value).(string); ok {
		a.SetItem(ctx, key, s)
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		a.log.Warn("store value does not encode", zap.String("key", key), zap.Error(err))
		return
	}
	a.SetItem(ctx, key, string(payload))
}

// Update is a read-modify-write over key. mutate receives ok=false when the
// key is absent or its value does not decode as T. Update is not atomic with
// respect to other callers of the same key.
func Update[T any](ctx context.Context, a *Adapter, key string, mutate func(prev T, ok bool) T) T {
	var prev T
	ok := false
	if raw, found := a.GetItem(ctx, key); found {
		if value, decoded := decode[T](raw); decoded {
			prev, ok = value, true
		} else if asRaw, isT := any(raw).(T); isT {
			prev, ok = asRaw, true
		}
	}
	next := mutate(prev, ok)
	Save(ctx, a, key, next)
	return next
}

func decode[T any](raw string) (T, bool) {
	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		var zero T
		return zero, false
	}
	return value, true
}
