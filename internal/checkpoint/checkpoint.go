// Package checkpoint implements the resumable checkpoint store from spec
// §4.4, grounded in the teacher's campaign save/load persistence
// (internal/campaign/orchestrator_lifecycle.go saveCampaign/LoadCampaign):
// a single JSON snapshot written atomically, with a base-path guard so a
// stale checkpoint from a different workspace can never be silently
// resumed against.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clawseedd/memory-polisher/internal/iox"
	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/model"
)

// Store persists a single checkpoint snapshot for one resolved workspace
// base path.
type Store struct {
	path     string
	basePath string
}

// New returns a Store whose checkpoint file lives at path, scoped to
// basePath (the resolved workspace root recorded in every saved snapshot).
func New(path, basePath string) *Store {
	return &Store{path: path, basePath: basePath}
}

// Save writes the full snapshot as JSON via WriteAtomic.
func (s *Store) Save(cp *model.Checkpoint) error {
	cp.BasePath = s.basePath
	cp.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := iox.WriteAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	logging.Get(logging.CategoryCheckpoint).Info("checkpoint saved: phase=%d session=%s", cp.CurrentPhase, cp.SessionID)
	return nil
}

// Load reads the checkpoint. Returns (nil, nil) if no checkpoint exists.
// Returns an error if the stored base_path differs from this Store's
// basePath, guarding against resuming against the wrong workspace.
func (s *Store) Load() (*model.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}

	if cp.BasePath != "" && cp.BasePath != s.basePath {
		return nil, fmt.Errorf("base path mismatch: checkpoint was created for %q, current workspace is %q", cp.BasePath, s.basePath)
	}

	return &cp, nil
}

// Exists reports whether a checkpoint file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Delete removes the checkpoint file, if present.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Archive renames the checkpoint file to include its started_at timestamp
// so a fresh run never confuses it for an in-progress checkpoint.
func (s *Store) Archive(startedAt time.Time) error {
	if !s.Exists() {
		return nil
	}

	dir := filepath.Dir(s.path)
	base := filepath.Base(s.path)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	archivePath := filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, startedAt.Format("20060102150405"), ext))

	if err := os.Rename(s.path, archivePath); err != nil {
		return fmt.Errorf("failed to archive checkpoint: %w", err)
	}

	logging.Get(logging.CategoryCheckpoint).Info("archived checkpoint to %s", archivePath)
	return nil
}

// CalculateProgress returns the run's completion percentage out of the six
// phases (0-5).
func CalculateProgress(currentPhase int) int {
	return currentPhase * 100 / 6
}

// GenerateSessionID returns a session id of the form
// "<yyyymmddHHMMSS>-<6 random lowercase alphanumerics>".
func GenerateSessionID() string {
	suffix := strings.ToLower(strings.ReplaceAll(uuid.New().String(), "-", ""))[:6]
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102150405"), suffix)
}
