package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "preferences.yaml")
	s := NewFileStore(path)

	if _, ok, err := s.Get("saathiLang"); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	if err := s.Set("saathiLang", "hi-IN"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := s.Set("other", "x"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	reopened := NewFileStore(path)
	value, ok, err := reopened.Get("saathiLang")
	if err != nil || !ok || value != "hi-IN" {
		t.Fatalf("unexpected value %q ok=%v err=%v", value, ok, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be renamed away")
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "preferences.yaml")
	if err := os.WriteFile(path, []byte("saathiLang: [unterminated"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, _, err := NewFileStore(path).Get("saathiLang"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, ok, err := s.Get("k")
	if err != nil || !ok || value != "v" {
		t.Fatalf("unexpected value %q ok=%v err=%v", value, ok, err)
	}
}
