package checkpoint

import (
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/clawseedd/memory-polisher/internal/model"
)

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "checkpoint.json"), dir)

	cp := &model.Checkpoint{
		SessionID:    "20260205120000-abc123",
		StartedAt:    time.Now().UTC(),
		CurrentPhase: 2,
	}
	if err := store.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected non-nil checkpoint")
	}
	if loaded.CurrentPhase != 2 || loaded.SessionID != cp.SessionID {
		t.Errorf("got %+v", loaded)
	}
	if loaded.BasePath != dir {
		t.Errorf("expected base_path=%s, got %s", dir, loaded.BasePath)
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "checkpoint.json"), dir)

	cp, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp != nil {
		t.Errorf("expected nil checkpoint for missing file, got %+v", cp)
	}
}

func TestLoadRejectsBasePathMismatch(t *testing.T) {
	dir := t.TempDir()
	writer := New(filepath.Join(dir, "checkpoint.json"), "/workspace/a")
	if err := writer.Save(&model.Checkpoint{SessionID: "x", CurrentPhase: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reader := New(filepath.Join(dir, "checkpoint.json"), "/workspace/b")
	if _, err := reader.Load(); err == nil {
		t.Fatal("expected base path mismatch error")
	}
}

func TestArchiveRenamesWithTimestamp(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "checkpoint.json"), dir)
	started := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

	if err := store.Save(&model.Checkpoint{SessionID: "x", CurrentPhase: 5}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Archive(started); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if store.Exists() {
		t.Error("expected checkpoint to no longer exist at original path after archiving")
	}

	matches, err := filepath.Glob(filepath.Join(dir, "checkpoint_*.json"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one archived checkpoint, got %v", matches)
	}
}

func TestCalculateProgress(t *testing.T) {
	if got := CalculateProgress(0); got != 0 {
		t.Errorf("phase 0: got %d, want 0", got)
	}
	if got := CalculateProgress(6); got != 100 {
		t.Errorf("phase 6: got %d, want 100", got)
	}
}

var sessionIDPattern = regexp.MustCompile(`^\d{14}-[a-z0-9]{6}$`)

func TestGenerateSessionIDFormat(t *testing.T) {
	id := GenerateSessionID()
	if !sessionIDPattern.MatchString(id) {
		t.Errorf("session id %q does not match expected format", id)
	}
}
