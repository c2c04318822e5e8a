package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clawseedd/memory-polisher/internal/model"
)

func TestWriteSessionIncludesCoreFields(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 5, 10, 30, 0, 0, time.UTC)

	r := SessionReport{
		SessionID:      "20260205103000-abc123",
		StartedAt:      now.Add(-2 * time.Minute),
		Duration:       2 * time.Minute,
		FilesProcessed: []string{"memory-2026-02-04.md", "memory-2026-02-05.md"},
		Extractions:    4,
		MergeProposals: []model.MergeProposal{
			{Canonical: "python", Alias: "py", Confidence: 0.9, Method: model.MethodLevenshtein},
		},
		Warnings: []string{"topic file trading.md is 80 bytes (below 100-byte threshold)"},
		Stats:    map[string]int{"topics_created": 3, "topics_updated": 1},
	}

	path, err := WriteSession(dir, r, now)
	if err != nil {
		t.Fatalf("WriteSession: %v", err)
	}
	if filepath.Base(path) != "session-2026-02-05.md" {
		t.Errorf("unexpected report filename: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	body := string(data)

	for _, want := range []string{
		"20260205103000-abc123",
		"Files processed: 2",
		"Extractions: 4",
		"py` -> `python`",
		"topics_created: 3",
		"below 100-byte threshold",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected report to contain %q, got:\n%s", want, body)
		}
	}
}

func TestWriteRollbackIncludesErrorsAndRestores(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 5, 11, 0, 0, 0, time.UTC)

	r := RollbackReport{
		SessionID: "20260205110000-def456",
		At:        now,
		Errors:    []string{"missing_entry: extraction abc123 not found in topic file"},
		Restored: []RestoreResult{
			{Target: "memory-2026-02-04.md", Hash: "deadbeef", OK: true},
			{Target: "memory-2026-02-05.md", Hash: "", OK: false, Error: "no backup for hash"},
		},
		SkippedCount: 1,
	}

	path, err := WriteRollback(dir, r, now)
	if err != nil {
		t.Fatalf("WriteRollback: %v", err)
	}
	if filepath.Base(path) != "rollback-2026-02-05.md" {
		t.Errorf("unexpected report filename: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	body := string(data)

	for _, want := range []string{
		"missing_entry",
		"memory-2026-02-04.md` (hash `deadbeef`): ok",
		"memory-2026-02-05.md",
		"failed: no backup for hash",
		"Skipped (missing hash/target): 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected rollback report to contain %q, got:\n%s", want, body)
		}
	}
}
