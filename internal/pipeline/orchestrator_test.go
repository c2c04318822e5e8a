package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunEndToEndPolishesTaggedSection(t *testing.T) {
	deps := newTestDeps(t)
	now := fixedNow()
	deps.Config.Advanced.MinTagFrequency = 1
	deps.Config.Archive.Enabled = false

	sourceFile := writeLog(t, deps, now.AddDate(0, 0, -1), "## Morning standup\n\nDiscussed the #python refactor in depth.\n")

	state, err := Run(context.Background(), deps, Options{}, now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Status != "completed" {
		t.Fatalf("expected completed status, got %s", state.Status)
	}

	topicData, err := os.ReadFile(filepath.Join(deps.TopicsDir, "Python.md"))
	if err != nil {
		t.Fatalf("expected Python.md to exist: %v", err)
	}
	if !strings.Contains(string(topicData), "Discussed the #python refactor") {
		t.Errorf("expected extracted content in topic file, got:\n%s", topicData)
	}

	updatedLog, err := os.ReadFile(filepath.Join(deps.MemoryDir, sourceFile))
	if err != nil {
		t.Fatalf("expected source log to still exist: %v", err)
	}
	if strings.Contains(string(updatedLog), "Discussed the #python refactor") {
		t.Errorf("expected original content replaced with a stub, got:\n%s", updatedLog)
	}
	if !strings.Contains(string(updatedLog), "Polished to") {
		t.Errorf("expected a polish stub in the updated log, got:\n%s", updatedLog)
	}

	if deps.Checkpoints.Exists() {
		t.Errorf("expected the completed checkpoint to be archived, not left in place")
	}
}

// TestRunEndToEndFinalizesWhenSourceLogIsWithinGracePeriod covers the
// common case (archiving enabled, but the source log is too recent to be
// archived this run): the primary-entry backlink Phase 3 writes must still
// resolve after Phase 4's link healing, so Phase 5 finalizes instead of
// rolling back.
func TestRunEndToEndFinalizesWhenSourceLogIsWithinGracePeriod(t *testing.T) {
	deps := newTestDeps(t)
	now := fixedNow()
	deps.Config.Advanced.MinTagFrequency = 1
	deps.Config.Archive.Enabled = true
	deps.Config.Archive.GracePeriodDays = 3

	writeLog(t, deps, now.AddDate(0, 0, -1), "## Morning standup\n\nDiscussed the #python refactor in depth.\n")

	state, err := Run(context.Background(), deps, Options{}, now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Status != "completed" {
		t.Fatalf("expected a clean run on a recent, non-archived log to finalize, got status %q (warnings: %v)", state.Status, state.Warnings)
	}

	topicData, err := os.ReadFile(filepath.Join(deps.TopicsDir, "Python.md"))
	if err != nil {
		t.Fatalf("expected Python.md to exist: %v", err)
	}
	if !strings.Contains(string(topicData), "](../") {
		t.Errorf("expected the primary entry's source backlink to keep its ../ prefix, got:\n%s", topicData)
	}
}

func TestRunDryRunStopsAfterExtractAndMakesNoModifications(t *testing.T) {
	deps := newTestDeps(t)
	now := fixedNow()
	deps.Config.Advanced.MinTagFrequency = 1

	sourceFile := writeLog(t, deps, now.AddDate(0, 0, -1), "## Morning standup\n\nDiscussed the #python refactor.\n")
	original, err := os.ReadFile(filepath.Join(deps.MemoryDir, sourceFile))
	if err != nil {
		t.Fatalf("failed to read source log: %v", err)
	}

	state, err := Run(context.Background(), deps, Options{DryRun: true}, now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(state.Extractions) != 1 {
		t.Fatalf("expected dry run to still extract, got %d extractions", len(state.Extractions))
	}

	after, err := os.ReadFile(filepath.Join(deps.MemoryDir, sourceFile))
	if err != nil {
		t.Fatalf("failed to re-read source log: %v", err)
	}
	if string(original) != string(after) {
		t.Errorf("expected dry run to leave the source log untouched")
	}
	if _, err := os.Stat(deps.TopicsDir); !os.IsNotExist(err) {
		t.Errorf("expected dry run to create no topic files")
	}
}
