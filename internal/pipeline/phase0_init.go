package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/model"
	"github.com/clawseedd/memory-polisher/internal/scan"
)

// diskSpaceSafetyFactor is the minimum multiple of memory-dir size that
// must remain free on disk before Phase 0 warns about likely insufficient
// space (a backup doubles the bytes of every file it copies).
const diskSpaceSafetyFactor = 2

// RunPhase0 creates the cache/report directory layout, verifies the memory
// directory exists, and backs up every dated log within the lookback
// window (spec §4.10).
func RunPhase0(deps *Deps, state *RunState, now time.Time) error {
	log := logging.Get(logging.CategoryPhase0)
	timer := logging.StartTimer(logging.CategoryPhase0, "RunPhase0")
	defer timer.Stop()

	if info, err := os.Stat(deps.MemoryDir); err != nil || !info.IsDir() {
		return NewPhaseError(0, ClassPreflight, fmt.Errorf("memory directory %s does not exist", deps.MemoryDir))
	}

	for _, sub := range []string{"backups", "extractions", "embeddings"} {
		if err := os.MkdirAll(filepath.Join(deps.CacheDir, sub), 0755); err != nil {
			return NewPhaseError(0, ClassPreflight, fmt.Errorf("failed to create %s directory: %w", sub, err))
		}
	}
	if err := os.MkdirAll(deps.ReportsDir, 0755); err != nil {
		return NewPhaseError(0, ClassPreflight, fmt.Errorf("failed to create reports directory: %w", err))
	}

	totalSize, err := dirSize(deps.MemoryDir)
	if err != nil {
		return NewPhaseError(0, ClassIOTransient, fmt.Errorf("failed to compute memory directory size: %w", err))
	}
	if free := availableDiskBytes(deps.BasePath); free >= 0 && free < totalSize*diskSpaceSafetyFactor {
		warning := fmt.Sprintf("available disk space (%d bytes) may be insufficient for a full backup of memory/ (%d bytes)", free, totalSize)
		log.Warn("%s", warning)
		state.Warnings = append(state.Warnings, warning)
	}

	lookback := deps.Config.Advanced.LookbackDays
	start := now.AddDate(0, 0, -lookback)

	files, err := scan.FindDailyLogs(deps.MemoryDir, start, now)
	if err != nil {
		return NewPhaseError(0, ClassIOTransient, fmt.Errorf("failed to list daily logs: %w", err))
	}

	backupsCreated := 0
	var backupSize int64
	for _, rel := range files {
		if _, ok := scan.ParseLogDate(filepath.Base(rel)); !ok {
			continue
		}
		abs := filepath.Join(deps.MemoryDir, rel)
		content, err := os.ReadFile(abs)
		if err != nil {
			appendTx(deps, 0, "backup", rel, "", model.StatusFailed, err)
			continue
		}

		_, hash, err := deps.Backups.Create(content, "")
		if err != nil {
			appendTx(deps, 0, "backup", rel, "", model.StatusFailed, err)
			continue
		}

		if err := deps.TxLog.Append(model.TransactionEntry{
			Phase:  0,
			Action: "backup",
			Target: rel,
			Hash:   hash,
			Status: model.StatusSuccess,
		}); err != nil {
			return NewPhaseError(0, ClassIOTransient, fmt.Errorf("failed to log backup transaction: %w", err))
		}

		backupsCreated++
		backupSize += int64(len(content))
	}

	state.CacheDir = deps.CacheDir
	state.BackupsCreated = backupsCreated
	state.BackupSize = backupSize
	state.Stats["backups_created"] = backupsCreated
	state.advance(0)

	log.Info("phase 0 complete: cache_dir=%s backups_created=%d backup_size=%d session_id=%s", deps.CacheDir, backupsCreated, backupSize, state.SessionID)
	return nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func appendTx(deps *Deps, phase int, action, target, hash string, status model.TransactionStatus, err error) {
	entry := model.TransactionEntry{
		Phase:  phase,
		Action: action,
		Target: target,
		Hash:   hash,
		Status: status,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if appendErr := deps.TxLog.Append(entry); appendErr != nil {
		logging.Get(logging.CategoryPhase0).Error("failed to append %s transaction for %s: %v", action, target, appendErr)
	}
}
