package pipeline

import (
	"path/filepath"
	"time"

	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/report"
)

// runRollback walks the transaction log in reverse and restores every
// replace_stubs target from its pre-update backup (spec §4.15 failure
// path / spec §4.3 "reverse rollback"). Entries missing a hash or target
// are skipped and noted, never treated as fatal.
func runRollback(deps *Deps, state *RunState, validationErrs, warnings []string, now time.Time) error {
	log := logging.Get(logging.CategoryPhase5)

	entries, err := deps.TxLog.GetReverse()
	if err != nil {
		return err
	}

	var restored []report.RestoreResult
	skipped := 0

	for _, entry := range entries {
		if entry.Action != "replace_stubs" {
			continue
		}
		if entry.Hash == "" || entry.Target == "" {
			skipped++
			log.Warn("rollback: skipping transaction entry with missing hash/target for action=%s", entry.Action)
			continue
		}

		target := entry.Target
		if !filepath.IsAbs(target) {
			target = filepath.Join(deps.MemoryDir, target)
		}

		res := report.RestoreResult{Target: entry.Target, Hash: entry.Hash}
		if err := deps.Backups.Restore(entry.Hash, target); err != nil {
			res.Error = err.Error()
			log.Warn("rollback: failed to restore %s: %v", entry.Target, err)
		} else {
			res.OK = true
		}
		restored = append(restored, res)
	}

	state.Status = "rolled_back"

	if _, err := report.WriteRollback(deps.ReportsDir, report.RollbackReport{
		SessionID:    state.SessionID,
		At:           now,
		Errors:       validationErrs,
		Warnings:     warnings,
		Restored:     restored,
		SkippedCount: skipped,
	}, now); err != nil {
		return err
	}

	if err := deps.Checkpoints.Save(state.ToCheckpoint()); err != nil {
		return err
	}

	log.Info("rollback complete: restored=%d skipped=%d", len(restored), skipped)
	return nil
}
