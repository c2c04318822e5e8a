// Package iox implements the crash-safe filesystem primitives every phase
// of the pipeline builds on (spec §4.1): write-then-rename so a reader
// never observes a half-written file, and rename-with-copy-fallback so a
// move across filesystems degrades to copy+verify+delete instead of
// failing outright.
package iox

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteAtomic writes data to path by writing to a temp file in the same
// directory, syncing it, and renaming it into place. A reader can never
// observe a partial write, and a crash mid-write leaves the original file
// (if any) untouched.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	written, err := os.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to read back temp file: %w", err)
	}
	if !bytes.Equal(written, data) {
		os.Remove(tmpPath)
		return fmt.Errorf("temp file content does not match input for %s after write", path)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// MoveSafe moves src to dst. It tries os.Rename first; if that fails (most
// often EXDEV, a cross-device move), it falls back to copying the content,
// verifying the copy's hash matches the source, and only then removing the
// source.
func MoveSafe(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := CopySafe(src, dst); err != nil {
		return fmt.Errorf("move fallback copy failed: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("move fallback copy succeeded but removing source failed: %w", err)
	}
	return nil
}

// CopySafe copies src to dst atomically (via WriteAtomic) and re-hashes the
// written file to confirm it matches the source before returning.
func CopySafe(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read source %s: %w", src, err)
	}

	srcHash := sha256.Sum256(data)

	info, err := os.Stat(src)
	perm := os.FileMode(0644)
	if err == nil {
		perm = info.Mode().Perm()
	}

	if err := WriteAtomic(dst, data, perm); err != nil {
		return fmt.Errorf("failed to write destination %s: %w", dst, err)
	}

	dstHash, err := HashFile(dst)
	if err != nil {
		return fmt.Errorf("failed to verify copied file: %w", err)
	}
	if dstHash != hex.EncodeToString(srcHash[:]) {
		os.Remove(dst)
		return fmt.Errorf("copy verification failed: hash mismatch for %s", dst)
	}
	return nil
}

// HashFile returns the lowercase hex SHA-256 of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the lowercase hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
