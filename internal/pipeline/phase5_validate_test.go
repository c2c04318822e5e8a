package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clawseedd/memory-polisher/internal/model"
)

func TestRunPhase5FinalizesOnCleanState(t *testing.T) {
	deps := newTestDeps(t)
	now := fixedNow()

	if err := os.MkdirAll(deps.TopicsDir, 0755); err != nil {
		t.Fatalf("failed to create topics dir: %v", err)
	}
	topicPath := filepath.Join(deps.TopicsDir, "Python.md")
	content := "# Python\n\n### 2026-07-30\n\nbody\n\n**Hash:** abc123\n\n---\n"
	if err := os.WriteFile(topicPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write topic file: %v", err)
	}

	state := NewRunState("sess-1", deps.BasePath, now)
	state.Extractions = []model.Extraction{{PrimaryTopic: "python", ContentHash: "abc123"}}

	if err := RunPhase5(deps, state, now); err != nil {
		t.Fatalf("RunPhase5: %v", err)
	}
	if state.Status != "completed" {
		t.Errorf("expected status completed, got %s", state.Status)
	}

	entries, err := os.ReadDir(deps.ReportsDir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a session report to be written, err=%v entries=%v", err, entries)
	}
}

func TestRunPhase5RollsBackOnContentIntegrityFailure(t *testing.T) {
	deps := newTestDeps(t)
	now := fixedNow()

	if err := os.MkdirAll(deps.TopicsDir, 0755); err != nil {
		t.Fatalf("failed to create topics dir: %v", err)
	}
	// Topic file exists but does not contain the expected hash.
	if err := os.WriteFile(filepath.Join(deps.TopicsDir, "Python.md"), []byte("# Python\n\nno hash here\n"), 0644); err != nil {
		t.Fatalf("failed to write topic file: %v", err)
	}

	sourceFile := writeLog(t, deps, now.AddDate(0, 0, -1), "## Stub\n\n→ pointer\n")
	content, err := os.ReadFile(filepath.Join(deps.MemoryDir, sourceFile))
	if err != nil {
		t.Fatalf("failed to read source log: %v", err)
	}
	_, hash, err := deps.Backups.Create(content, "")
	if err != nil {
		t.Fatalf("Backups.Create: %v", err)
	}
	if err := deps.TxLog.Append(model.TransactionEntry{
		Phase: 4, Action: "replace_stubs", Target: sourceFile, Hash: hash, Status: model.StatusSuccess,
	}); err != nil {
		t.Fatalf("TxLog.Append: %v", err)
	}

	state := NewRunState("sess-1", deps.BasePath, now)
	state.Extractions = []model.Extraction{{PrimaryTopic: "python", ContentHash: "missing-hash"}}

	err = RunPhase5(deps, state, now)
	if err == nil {
		t.Fatal("expected RunPhase5 to return an error on content integrity failure")
	}
	if state.Status != "rolled_back" {
		t.Errorf("expected status rolled_back, got %s", state.Status)
	}

	entries, err := os.ReadDir(deps.ReportsDir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a rollback report to be written, err=%v entries=%v", err, entries)
	}
}
