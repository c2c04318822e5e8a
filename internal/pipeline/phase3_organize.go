package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/clawseedd/memory-polisher/internal/iox"
	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/model"
	"github.com/clawseedd/memory-polisher/internal/scan"
)

const maxTopicNameLen = 100

// RunPhase3 writes topic-file entries for every Extraction, cross-reference
// stubs for secondary topics, and then folds merged topic files into their
// canonical counterpart (spec §4.13).
func RunPhase3(deps *Deps, state *RunState, now time.Time) error {
	log := logging.Get(logging.CategoryPhase3)
	timer := logging.StartTimer(logging.CategoryPhase3, "RunPhase3")
	defer timer.Stop()

	createdFiles := make(map[string]bool)
	entriesWritten := 0
	crossRefs := 0

	for _, ext := range state.Extractions {
		path, err := resolveTopicPath(deps.TopicsDir, ext.PrimaryTopic)
		if err != nil {
			return NewPhaseError(3, ClassSecurity, err)
		}

		_, statErr := os.Stat(path)
		if err := appendPrimaryEntry(path, ext, os.IsNotExist(statErr), now); err != nil {
			return NewPhaseError(3, ClassIOTransient, err)
		}
		if !createdFiles[path] {
			createdFiles[path] = true
		}
		entriesWritten++

		for _, secondary := range ext.SecondaryTopics {
			secPath, err := resolveTopicPath(deps.TopicsDir, secondary)
			if err != nil {
				return NewPhaseError(3, ClassSecurity, err)
			}
			_, statErr := os.Stat(secPath)
			if err := appendCrossRef(secPath, ext, os.IsNotExist(statErr), now); err != nil {
				return NewPhaseError(3, ClassIOTransient, err)
			}
			createdFiles[secPath] = true
			crossRefs++
		}
	}

	mergesCompleted := 0
	for _, proposal := range state.MergeProposals {
		applied, err := applyMergeToTopicFiles(deps, proposal, now)
		if err != nil {
			return NewPhaseError(3, ClassIOTransient, err)
		}
		if applied {
			mergesCompleted++
		}
	}

	state.EntriesWritten = entriesWritten
	state.CrossRefsCreated = crossRefs
	state.MergesCompleted = mergesCompleted
	state.TopicFilesCreated = len(createdFiles)
	state.Stats["entries_written"] = entriesWritten
	state.Stats["cross_refs_created"] = crossRefs
	state.Stats["merges_completed"] = mergesCompleted
	state.advance(3)

	log.Info("phase 3 complete: entries=%d cross_refs=%d merges=%d topic_files=%d", entriesWritten, crossRefs, mergesCompleted, len(createdFiles))
	return nil
}

var invalidTopicChars = regexp.MustCompile(`[^A-Za-z0-9 _-]`)

// sanitizeTopicName turns a raw topic tag into a safe file stem: strips
// ".." and path separators, drops filename-invalid characters, truncates
// to 100 chars, defaults to "unnamed" when empty, and capitalizes the
// first letter (spec §4.13 step 1).
func sanitizeTopicName(primary string) string {
	name := strings.ReplaceAll(primary, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	name = invalidTopicChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)

	if len(name) > maxTopicNameLen {
		name = name[:maxTopicNameLen]
	}
	if name == "" {
		name = "unnamed"
	}

	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// resolveTopicPath sanitizes primary, builds its absolute topic-file path,
// and verifies the result remains inside topicsDir.
func resolveTopicPath(topicsDir, primary string) (string, error) {
	name := sanitizeTopicName(primary)
	path := filepath.Join(topicsDir, name+".md")

	absTopics, err := filepath.Abs(topicsDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve topics directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve topic path: %w", err)
	}
	if !strings.HasPrefix(absPath, absTopics+string(filepath.Separator)) {
		return "", fmt.Errorf("security violation: topic path %q escapes topics directory %q", absPath, absTopics)
	}

	return path, nil
}

func topicHeader(name string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", name))
	sb.WriteString("*Curated by memory-polisher.*\n\n")
	sb.WriteString(fmt.Sprintf("**Topic:** #%s\n", strings.ToLower(name)))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n\n", now.Format("2006-01-02")))
	sb.WriteString("---\n\n")
	return sb.String()
}

func entryDate(ext model.Extraction) string {
	if date, ok := scan.ParseLogDate(filepath.Base(ext.SourceFile)); ok {
		return date.Format("2006-01-02")
	}
	return ext.ExtractedAt.Format("2006-01-02")
}

// appendPrimaryEntry writes ext's primary entry (spec §4.13 step 3),
// creating path with a fresh header first if createHeader is true.
func appendPrimaryEntry(path string, ext model.Extraction, createHeader bool, now time.Time) error {
	var sb strings.Builder
	if createHeader {
		name := strings.TrimSuffix(filepath.Base(path), ".md")
		sb.WriteString(topicHeader(name, now))
	}

	date := entryDate(ext)
	sb.WriteString(fmt.Sprintf("### %s — [%s](../%s#L%d)\n\n", date, ext.SourceFile, ext.SourceFile, ext.SourceLineStart+1))
	sb.WriteString(ext.FullContent)
	sb.WriteString("\n\n")

	tags := "#" + ext.PrimaryTopic
	for _, s := range ext.SecondaryTopics {
		tags += " #" + s
	}
	sb.WriteString(fmt.Sprintf("**Topics:** %s\n", tags))
	sb.WriteString(fmt.Sprintf("**Source:** %s (lines %d-%d)\n", ext.SourceFile, ext.SourceLineStart+1, ext.SourceLineEnd+1))
	sb.WriteString(fmt.Sprintf("**Hash:** %s\n\n", ext.ContentHash))
	sb.WriteString("---\n\n")

	return appendToFile(path, sb.String())
}

// appendCrossRef writes a cross-reference stub for a secondary topic
// (spec §4.13 step 4).
func appendCrossRef(path string, ext model.Extraction, createHeader bool, now time.Time) error {
	var sb strings.Builder
	if createHeader {
		name := strings.TrimSuffix(filepath.Base(path), ".md")
		sb.WriteString(topicHeader(name, now))
	}

	date := entryDate(ext)
	primaryName := sanitizeTopicName(ext.PrimaryTopic)

	sb.WriteString(fmt.Sprintf("### %s — Cross-Reference\n\n", date))
	sb.WriteString(fmt.Sprintf("📌 **Full entry:** [Topics/%s.md](../%s.md#%s)\n\n", primaryName, primaryName, date))
	sb.WriteString(fmt.Sprintf("**Preview:** %s...\n\n", previewOf(ext.FullContent, 100)))

	tags := "#" + ext.PrimaryTopic
	for _, s := range ext.SecondaryTopics {
		tags += " #" + s
	}
	sb.WriteString(fmt.Sprintf("**Tags:** %s\n", tags))
	sb.WriteString(fmt.Sprintf("**Related File:** %s\n\n", ext.SourceFile))
	sb.WriteString("---\n\n")

	return appendToFile(path, sb.String())
}

func previewOf(content string, n int) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	if len(collapsed) > n {
		return collapsed[:n]
	}
	return collapsed
}

func appendToFile(path, addition string) error {
	existing := ""
	if data, err := os.ReadFile(path); err == nil {
		existing = string(data)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read topic file %s: %w", path, err)
	}

	return iox.WriteAtomic(path, []byte(existing+addition), 0644)
}
