package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "nurseos/handover/draft/p1/dia", `{"evolucion":"x"}`); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "nurseos/handover/draft/p1/dia", `{"evolucion":"y"}`); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "nurseos/handover/draft/p1/dia")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != `{"evolucion":"y"}` {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	if err := store.Delete(ctx, "nurseos/handover/draft/p1/dia"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, ok, err = store.Get(ctx, "nurseos/handover/draft/p1/dia")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestStoreKeysByPrefix(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, key := range []string{
		"nurseos/handover/draft/p2/noche",
		"nurseos/handover/draft/p1/dia",
		"nurseos/bcma/draft/p1/a",
		"nurseos/handover/draftX",
		"nurseos/handover/draft_%",
	} {
		if err := store.Set(ctx, key, "{}"); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	keys, err := store.Keys(ctx, "nurseos/handover/draft/")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "nurseos/handover/draft/p1/dia" || keys[1] != "nurseos/handover/draft/p2/noche" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	keys, err = store.Keys(ctx, "nurseos/handover/draft_")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "nurseos/handover/draft_%" {
		t.Fatalf("expected literal underscore match, got %v", keys)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nurseos.db")
	store, err := New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	val, ok, err := reopened.Get(ctx, "k")
	if err != nil || !ok || val != "v" {
		t.Fatalf("expected value after reopen, got %q ok=%v err=%v", val, ok, err)
	}
}
