package draft

import (
	"net/url"
	"strings"
)

const DefaultPrefix = "nurseos/handover/draft"

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}

// Key derives the storage key "<prefix>/<entity>/<sub>" for c. Both parts are
// path-escaped so that distinct contexts never share a key. It reports false
// when c has no entity, in which case nothing may be persisted.
func Key(prefix string, c Context) (string, bool) {
	if strings.TrimSpace(c.EntityID) == "" {
		return "", false
	}
	return normalizePrefix(prefix) + "/" + url.PathEscape(c.EntityID) + "/" + url.PathEscape(c.SubContext), true
}

// ParseKey reverses Key for keys under prefix.
func ParseKey(prefix, key string) (Context, bool) {
	rest, ok := strings.CutPrefix(key, normalizePrefix(prefix)+"/")
	if !ok {
		return Context{}, false
	}
	entity, sub, ok := strings.Cut(rest, "/")
	if !ok || strings.Contains(sub, "/") {
		return Context{}, false
	}
	entity, err := url.PathUnescape(entity)
	if err != nil || strings.TrimSpace(entity) == "" {
		return Context{}, false
	}
	sub, err = url.PathUnescape(sub)
	if err != nil {
		return Context{}, false
	}
	return Context{EntityID: entity, SubContext: sub}, true
}
