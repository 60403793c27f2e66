package scales

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Braden.json", `{"title":"Braden"}`)
	writeFile(t, dir, "eva.yaml", "title: EVA\nmax: 10\n")
	writeFile(t, dir, "notes.txt", "ignored")

	r, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"braden", "eva"}, r.List()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	def, err := r.Get("BRADEN")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if def["title"] != "Braden" {
		t.Fatalf("unexpected definition %v", def)
	}
	eva, err := r.Get("eva")
	if err != nil {
		t.Fatalf("get eva: %v", err)
	}
	if eva["max"] != 10 {
		t.Fatalf("unexpected eva definition %v", eva)
	}
}

func TestGetUnknownScale(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Get("norton")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err.Error() != "scale not found: norton" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestLoadMissingDirIsEmpty(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "missing"), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(r.List()) != 0 {
		t.Fatalf("expected empty registry, got %v", r.List())
	}
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", "{")
	if _, err := Load(dir, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestShippedDefinitionsLoad(t *testing.T) {
	r, err := Load(filepath.Join("..", "..", "scales", "definitions"), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"braden", "eva", "glasgow"}, r.List()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}
