// Package report renders the Phase 5 session and rollback artifacts from
// spec §4.15 as markdown, grounded in the teacher's
// internal/campaign/intelligence_gatherer.go FormatForContext: a
// strings.Builder assembling "## " sections, written atomically to
// memory/.polish-reports/.
package report

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/clawseedd/memory-polisher/internal/iox"
	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/model"
)

// SessionReport summarizes a successful Phase 5 finalization.
type SessionReport struct {
	SessionID      string
	StartedAt      time.Time
	Duration       time.Duration
	FilesProcessed []string
	Extractions    int
	MergeProposals []model.MergeProposal
	Warnings       []string
	Stats          map[string]int
}

// RollbackReport summarizes a Phase 5 validation failure and the rollback
// it triggered.
type RollbackReport struct {
	SessionID     string
	At            time.Time
	Errors        []string
	Warnings      []string
	Restored      []RestoreResult
	SkippedCount  int
}

// RestoreResult records the outcome of restoring one file from backup
// during rollback.
type RestoreResult struct {
	Target string
	Hash   string
	OK     bool
	Error  string
}

// WriteSession renders r and writes it atomically to
// "<dir>/session-<YYYY-MM-DD>.md", returning the path written.
func WriteSession(dir string, r SessionReport, now time.Time) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("session-%s.md", now.Format("2006-01-02")))
	body := renderSession(r)
	if err := iox.WriteAtomic(path, []byte(body), 0644); err != nil {
		return "", fmt.Errorf("failed to write session report: %w", err)
	}
	logging.Get(logging.CategoryReport).Info("wrote session report to %s", path)
	return path, nil
}

// WriteRollback renders r and writes it atomically to
// "<dir>/rollback-<YYYY-MM-DD>.md", returning the path written.
func WriteRollback(dir string, r RollbackReport, now time.Time) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("rollback-%s.md", now.Format("2006-01-02")))
	body := renderRollback(r)
	if err := iox.WriteAtomic(path, []byte(body), 0644); err != nil {
		return "", fmt.Errorf("failed to write rollback report: %w", err)
	}
	logging.Get(logging.CategoryReport).Info("wrote rollback report to %s", path)
	return path, nil
}

func renderSession(r SessionReport) string {
	var sb strings.Builder

	sb.WriteString("# Session Report\n\n")
	sb.WriteString(fmt.Sprintf("- Session: `%s`\n", r.SessionID))
	sb.WriteString(fmt.Sprintf("- Started: %s\n", r.StartedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("- Duration: %s\n", r.Duration.Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("- Files processed: %d\n", len(r.FilesProcessed)))
	sb.WriteString(fmt.Sprintf("- Extractions: %d\n\n", r.Extractions))

	if len(r.Stats) > 0 {
		sb.WriteString("## Stats\n\n")
		for _, k := range sortedKeys(r.Stats) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", k, r.Stats[k]))
		}
		sb.WriteString("\n")
	}

	if len(r.MergeProposals) > 0 {
		sb.WriteString("## Merges Applied\n\n")
		for _, m := range r.MergeProposals {
			sb.WriteString(fmt.Sprintf("- `%s` -> `%s` (%s, confidence %.2f)\n", m.Alias, m.Canonical, m.Method, m.Confidence))
		}
		sb.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
		sb.WriteString("\n")
	}

	if len(r.FilesProcessed) > 0 {
		sb.WriteString("## Files Processed\n\n")
		for _, f := range r.FilesProcessed {
			sb.WriteString(fmt.Sprintf("- `%s`\n", f))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func renderRollback(r RollbackReport) string {
	var sb strings.Builder

	sb.WriteString("# Rollback Report\n\n")
	sb.WriteString(fmt.Sprintf("- Session: `%s`\n", r.SessionID))
	sb.WriteString(fmt.Sprintf("- At: %s\n", r.At.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("- Restored: %d\n", len(r.Restored)))
	sb.WriteString(fmt.Sprintf("- Skipped (missing hash/target): %d\n\n", r.SkippedCount))

	if len(r.Errors) > 0 {
		sb.WriteString("## Validation Errors\n\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	if len(r.Restored) > 0 {
		sb.WriteString("## Restored Files\n\n")
		for _, res := range r.Restored {
			status := "ok"
			if !res.OK {
				status = fmt.Sprintf("failed: %s", res.Error)
			}
			sb.WriteString(fmt.Sprintf("- `%s` (hash `%s`): %s\n", res.Target, res.Hash, status))
		}
		sb.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
