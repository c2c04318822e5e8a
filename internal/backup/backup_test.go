package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawseedd/memory-polisher/internal/iox"
)

func TestCreateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path1, hash1, err := store.Create([]byte("daily log content"), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	path2, hash2, err := store.Create([]byte("daily log content"), "")
	if err != nil {
		t.Fatalf("Create (second): %v", err)
	}

	if path1 != path2 || hash1 != hash2 {
		t.Errorf("expected identical content to dedup to the same backup, got %s vs %s", path1, path2)
	}
}

func TestRestore(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, hash, err := store.Create([]byte("original content"), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	target := filepath.Join(t.TempDir(), "restored.md")
	if err := store.Restore(hash, target); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "original content" {
		t.Errorf("got %q, want %q", data, "original content")
	}
}

func TestCleanOld(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, _, err := store.Create([]byte("stale"), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	deleted, err := store.CleanOld(24)
	if err != nil {
		t.Fatalf("CleanOld: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deletion, got %d", deleted)
	}
	if store.Exists(iox.HashBytes([]byte("stale"))) {
		t.Error("expected stale backup to be removed")
	}
}
