// Package backup implements the content-addressed backup store from spec
// §4.2: copies are named by their SHA-256 hash, so identical content across
// multiple source files dedups to one on-disk record automatically.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clawseedd/memory-polisher/internal/iox"
	"github.com/clawseedd/memory-polisher/internal/logging"
)

// Store is a content-addressed backup directory.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backup directory path.
func (s *Store) Dir() string { return s.dir }

// Create backs up bytes content-addressed by its SHA-256 hash (computed if
// hash is empty). If a backup with that hash already exists, Create is a
// no-op and returns its existing path (idempotent).
func (s *Store) Create(content []byte, hash string) (path string, contentHash string, err error) {
	log := logging.Get(logging.CategoryBackup)

	if hash == "" {
		hash = iox.HashBytes(content)
	}

	target := s.pathFor(hash)
	if _, err := os.Stat(target); err == nil {
		log.Debug("backup already exists for hash %s, skipping write", hash)
		return target, hash, nil
	}

	if err := iox.WriteAtomic(target, content, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write backup %s: %w", target, err)
	}

	log.Info("created backup %s", target)
	return target, hash, nil
}

// Restore reads the backup for hash and writes it to target. Restoration
// during rollback is allowed to be non-atomic per spec §4.2.
func (s *Store) Restore(hash, target string) error {
	src := s.pathFor(hash)
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read backup %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("failed to write restored file %s: %w", target, err)
	}

	logging.Get(logging.CategoryBackup).Info("restored %s from backup %s", target, hash)
	return nil
}

// Exists reports whether a backup for hash is present.
func (s *Store) Exists(hash string) bool {
	_, err := os.Stat(s.pathFor(hash))
	return err == nil
}

// CleanOld deletes backup files whose mtime is older than maxAgeHours,
// returning the number deleted.
func (s *Store) CleanOld(maxAgeHours int) (int, error) {
	log := logging.Get(logging.CategoryBackup)
	cutoff := time.Now().Add(-time.Duration(maxAgeHours) * time.Hour)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read backup directory: %w", err)
	}

	deleted := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				log.Warn("failed to remove old backup %s: %v", e.Name(), err)
				continue
			}
			deleted++
		}
	}

	log.Info("cleaned %d backups older than %d hours", deleted, maxAgeHours)
	return deleted, nil
}

func (s *Store) pathFor(hash string) string {
	return filepath.Join(s.dir, hash+".md")
}
