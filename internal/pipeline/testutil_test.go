package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawseedd/memory-polisher/internal/config"
	"github.com/clawseedd/memory-polisher/internal/model"
)

// newTestDeps builds a Deps rooted at a fresh temp workspace with an empty
// memory/ directory, using default configuration (levenshtein similarity,
// no embedding cache needed).
func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	base := t.TempDir()
	memDir := filepath.Join(base, "memory")
	if err := os.MkdirAll(memDir, 0755); err != nil {
		t.Fatalf("failed to create memory dir: %v", err)
	}

	cfg := config.DefaultConfig()
	deps, err := NewDeps(base, cfg, nil)
	if err != nil {
		t.Fatalf("NewDeps: %v", err)
	}
	t.Cleanup(func() { deps.Close() })
	return deps
}

// writeLog writes a daily log file named "YYYY-MM-DD.md" under memory/
// with the given content.
func writeLog(t *testing.T, deps *Deps, date time.Time, content string) string {
	t.Helper()
	name := date.Format("2006-01-02") + ".md"
	path := filepath.Join(deps.MemoryDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write log %s: %v", name, err)
	}
	return name
}

func fixedNow() time.Time {
	return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
}

// canonicalMapWithAlias builds a CanonicalMap mapping alias -> canonical.
func canonicalMapWithAlias(alias, canonical string) *model.CanonicalMap {
	return &model.CanonicalMap{
		CanonicalMap: map[string]*model.CanonicalEntry{
			canonical: {Canonical: canonical},
		},
		AliasMap: map[string]string{alias: canonical},
	}
}
