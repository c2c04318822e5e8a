package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/report"
)

// minHealthyTopicFileBytes is the spec §4.15 check-4 threshold below which
// a non-empty topic file is merely suspicious (warning), not corrupt.
const minHealthyTopicFileBytes = 100

// RunPhase5 runs the four integrity checks from spec §4.15. On success it
// finalizes the run (report, checkpoint archive, optional cleanup); on any
// error it invokes rollback and writes a rollback report.
func RunPhase5(deps *Deps, state *RunState, now time.Time) error {
	log := logging.Get(logging.CategoryPhase5)
	timer := logging.StartTimer(logging.CategoryPhase5, "RunPhase5")
	defer timer.Stop()

	var errs, warnings []string

	errs = append(errs, checkContentIntegrity(deps, state)...)

	linkErrs, err := checkLinkIntegrity(deps.TopicsDir)
	if err != nil {
		return NewPhaseError(5, ClassIOTransient, err)
	}
	errs = append(errs, linkErrs...)

	mergeErrs, mergeWarnings, err := checkMergeIntegrity(deps, state, now)
	if err != nil {
		return NewPhaseError(5, ClassIOTransient, err)
	}
	errs = append(errs, mergeErrs...)
	warnings = append(warnings, mergeWarnings...)

	fsErrs, fsWarnings, err := checkFilesystemHealth(deps.TopicsDir)
	if err != nil {
		return NewPhaseError(5, ClassIOTransient, err)
	}
	errs = append(errs, fsErrs...)
	warnings = append(warnings, fsWarnings...)

	warnings = append(warnings, state.Warnings...)

	if len(errs) == 0 {
		return finalizeRun(deps, state, warnings, now)
	}

	log.Warn("validation found %d error(s), invoking rollback", len(errs))
	if err := runRollback(deps, state, errs, warnings, now); err != nil {
		return NewPhaseError(5, ClassValidation, err)
	}
	return NewPhaseError(5, ClassValidation, fmt.Errorf("validation failed with %d error(s), rolled back: %s", len(errs), strings.Join(errs, "; ")))
}

// checkContentIntegrity implements spec §4.15 check 1.
func checkContentIntegrity(deps *Deps, state *RunState) []string {
	var errs []string
	for _, ext := range state.Extractions {
		path, err := resolveTopicPath(deps.TopicsDir, ext.PrimaryTopic)
		if err != nil {
			errs = append(errs, fmt.Sprintf("content_integrity: %v", err))
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil || !strings.Contains(string(data), ext.ContentHash) {
			errs = append(errs, fmt.Sprintf("content_integrity: topic file for %q missing hash %s", ext.PrimaryTopic, ext.ContentHash))
		}
	}
	return errs
}

var markdownLinkPattern = regexp.MustCompile(`\[[^\]]*\]\(([^)#]+)(#[^)]*)?\)`)

// checkLinkIntegrity implements spec §4.15 check 2.
func checkLinkIntegrity(topicsDir string) ([]string, error) {
	var errs []string

	err := filepath.Walk(topicsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		for _, m := range markdownLinkPattern.FindAllStringSubmatch(string(data), -1) {
			target := strings.TrimSpace(m[1])
			if target == "" || strings.Contains(target, "://") {
				continue
			}
			resolved := filepath.Join(filepath.Dir(path), target)
			if _, err := os.Stat(resolved); err != nil {
				errs = append(errs, fmt.Sprintf("link_integrity: %s references missing file %s", path, target))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk topics directory for link integrity: %w", err)
	}
	return errs, nil
}

// checkMergeIntegrity implements spec §4.15 check 3.
func checkMergeIntegrity(deps *Deps, state *RunState, now time.Time) (errs, warnings []string, err error) {
	for _, p := range state.MergeProposals {
		archivePath := filepath.Join(deps.TopicsDir, ".archive", fmt.Sprintf("%s_merged_%s.md", sanitizeTopicName(p.Alias), now.Format("2006-01-02")))
		if _, statErr := os.Stat(archivePath); statErr != nil {
			warnings = append(warnings, fmt.Sprintf("merge_integrity: expected archive file missing for alias %q", p.Alias))
		}

		canonicalPath, pathErr := resolveTopicPath(deps.TopicsDir, p.Canonical)
		if pathErr != nil {
			errs = append(errs, fmt.Sprintf("merge_integrity: %v", pathErr))
			continue
		}
		data, readErr := os.ReadFile(canonicalPath)
		if readErr != nil {
			continue
		}
		hashes := hashLinePattern.FindAllStringSubmatch(string(data), -1)
		seen := make(map[string]bool, len(hashes))
		for _, h := range hashes {
			if seen[h[1]] {
				errs = append(errs, fmt.Sprintf("merge_integrity: duplicate hash %s in %s", h[1], canonicalPath))
				continue
			}
			seen[h[1]] = true
		}
	}
	return errs, warnings, nil
}

// checkFilesystemHealth implements spec §4.15 check 4.
func checkFilesystemHealth(topicsDir string) (errs, warnings []string, err error) {
	walkErr := filepath.Walk(topicsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			errs = append(errs, fmt.Sprintf("filesystem_health: %s is unreadable: %v", path, readErr))
			return nil
		}

		switch {
		case len(data) == 0:
			errs = append(errs, fmt.Sprintf("filesystem_health: %s is empty", path))
		case len(data) < minHealthyTopicFileBytes:
			warnings = append(warnings, fmt.Sprintf("filesystem_health: %s is %d bytes (below %d-byte threshold)", path, len(data), minHealthyTopicFileBytes))
		}

		text := string(data)
		if strings.Contains(text, "undefined") || strings.Contains(text, "[object Object]") {
			errs = append(errs, fmt.Sprintf("filesystem_health: %s contains a pipeline corruption marker", path))
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("failed to walk topics directory for filesystem health: %w", walkErr)
	}
	return errs, warnings, nil
}

// finalizeRun writes the session report, archives the checkpoint, and
// optionally cleans old backups (spec §4.15 success path).
func finalizeRun(deps *Deps, state *RunState, warnings []string, now time.Time) error {
	state.Status = "completed"
	state.advance(5)

	if deps.Config.Cleanup.AutoCleanup {
		if _, err := deps.Backups.CleanOld(deps.Config.Cleanup.KeepSessionCacheHours); err != nil {
			logging.Get(logging.CategoryPhase5).Warn("backup cleanup failed: %v", err)
		}
	}

	if _, err := report.WriteSession(deps.ReportsDir, report.SessionReport{
		SessionID:      state.SessionID,
		StartedAt:      state.StartedAt,
		Duration:       now.Sub(state.StartedAt),
		FilesProcessed: state.FilesProcessed,
		Extractions:    len(state.Extractions),
		MergeProposals: state.MergeProposals,
		Warnings:       warnings,
		Stats:          state.Stats,
	}, now); err != nil {
		return fmt.Errorf("failed to write session report: %w", err)
	}

	if err := deps.Checkpoints.Save(state.ToCheckpoint()); err != nil {
		return fmt.Errorf("failed to save final checkpoint: %w", err)
	}
	if err := deps.Checkpoints.Archive(state.StartedAt); err != nil {
		return fmt.Errorf("failed to archive checkpoint: %w", err)
	}
	if err := deps.TxLog.Archive(); err != nil {
		return fmt.Errorf("failed to archive transaction log: %w", err)
	}

	logging.Get(logging.CategoryPhase5).Info("phase 5 complete: run finalized, session=%s", state.SessionID)
	return nil
}
