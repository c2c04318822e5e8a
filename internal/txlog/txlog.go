// Package txlog implements the append-only JSONL transaction log from spec
// §4.3, adapted from the teacher's AuditFileLogger (internal/tactile/audit.go):
// writes are serialized through a single mutex-guarded file handle so
// entries are totally ordered in time within a run, and archive() rotates
// the log to a timestamped filename the way the teacher's Rotate() does.
package txlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/model"
)

// Log is the append-only transaction log for one workspace.
type Log struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open opens (creating if necessary) the transaction log at path for append.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create transaction log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction log: %w", err)
	}

	return &Log{file: file, path: path}, nil
}

// Append writes one entry as a JSON object terminated by a newline. Calls
// are serialized through a mutex so entries stay totally ordered in time,
// matching the single-writer-queue discipline spec §5 requires.
func (l *Log) Append(entry model.TransactionEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction entry: %w", err)
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append transaction entry: %w", err)
	}

	return nil
}

// Close closes the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Read parses every entry currently in the log, in file order.
func (l *Log) Read() ([]model.TransactionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open transaction log for read: %w", err)
	}
	defer f.Close()

	var entries []model.TransactionEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.TransactionEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse transaction log line: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan transaction log: %w", err)
	}

	return entries, nil
}

// GetByAction returns every entry whose Action matches.
func (l *Log) GetByAction(action string) ([]model.TransactionEntry, error) {
	entries, err := l.Read()
	if err != nil {
		return nil, err
	}
	var filtered []model.TransactionEntry
	for _, e := range entries {
		if e.Action == action {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// GetFailed returns every entry whose Status is "failed".
func (l *Log) GetFailed() ([]model.TransactionEntry, error) {
	entries, err := l.Read()
	if err != nil {
		return nil, err
	}
	var filtered []model.TransactionEntry
	for _, e := range entries {
		if e.Status == model.StatusFailed {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// GetReverse returns every entry in reverse (most recent first) order, the
// traversal direction rollback uses to undo a run.
func (l *Log) GetReverse() ([]model.TransactionEntry, error) {
	entries, err := l.Read()
	if err != nil {
		return nil, err
	}
	reversed := make([]model.TransactionEntry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	return reversed, nil
}

// Archive renames the current log to transaction_<yyyymmddHHMMSS>.log and
// reopens a fresh empty log at the original path.
func (l *Log) Archive() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("failed to close transaction log before archiving: %w", err)
		}
		l.file = nil
	}

	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		// Nothing to archive; just (re)create an empty log.
	} else {
		dir := filepath.Dir(l.path)
		base := filepath.Base(l.path)
		ext := filepath.Ext(base)
		stem := base[:len(base)-len(ext)]
		archivePath := filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, time.Now().Format("20060102150405"), ext))

		if err := os.Rename(l.path, archivePath); err != nil {
			return fmt.Errorf("failed to archive transaction log: %w", err)
		}
		logging.Get(logging.CategoryTxLog).Info("archived transaction log to %s", archivePath)
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to reopen transaction log: %w", err)
	}
	l.file = file
	return nil
}
