package state

import "context"

// Store is a persistent string-keyed backend. Get reports absence with
// ok=false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Lister is implemented by backends that can enumerate keys by prefix.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}
