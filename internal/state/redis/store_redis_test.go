package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEscapeGlob(t *testing.T) {
	got := escapeGlob(`nurseos/draft/[p1]*?`)
	want := `nurseos/draft/\[p1\]\*\?`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"a", "a", "b", "c", "c"})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected dedupe result %v", got)
	}
}

func TestNewRejectsInvalidURL(t *testing.T) {
	if _, err := New(context.Background(), "not a url"); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}

// TestStoreAgainstServer runs only when NURSEOS_TEST_REDIS_URL points at a
// disposable redis instance.
func TestStoreAgainstServer(t *testing.T) {
	url := os.Getenv("NURSEOS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("NURSEOS_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer store.Close()

	prefix := "nurseos-test/" + uuid.NewString() + "/"
	t.Cleanup(func() {
		keys, _ := store.Keys(context.Background(), prefix)
		for _, key := range keys {
			_ = store.Delete(context.Background(), key)
		}
	})
	if err := store.Set(ctx, prefix+"p1/dia", `{"evolucion":"x"}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := store.Get(ctx, prefix+"p1/dia")
	if err != nil || !ok || val != `{"evolucion":"x"}` {
		t.Fatalf("unexpected get %q ok=%v err=%v", val, ok, err)
	}
	keys, err := store.Keys(ctx, prefix)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != prefix+"p1/dia" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if err := store.Delete(ctx, prefix+"p1/dia"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := store.Get(ctx, prefix+"p1/dia"); err != nil || ok {
		t.Fatalf("expected missing after delete, ok=%v err=%v", ok, err)
	}
}
