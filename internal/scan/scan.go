// Package scan implements daily-log discovery and hashtag extraction
// (spec §4.5): a filtered filesystem walk over the workspace's memory
// directory, and a regex-driven hashtag scanner with the normalization and
// rejection rules from spec §3 entity 3.
package scan

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/model"
)

var excludedDirs = map[string]bool{
	"Topics":           true,
	"topics":           true,
	"Archive":          true,
	"archive":          true,
	".polish-cache":    true,
	".polish-reports":  true,
}

var datedLogPattern = regexp.MustCompile(`^(?:memory-)?(\d{4})-(\d{2})-(\d{2})\.md$`)

// FindDailyLogs walks dir recursively, excluding the generated subdirs and
// any directory beginning with ".", returning workspace-relative paths to
// every regular ".md" file, sorted lexicographically. When both start and
// end are non-zero, files whose name matches the dated-log pattern are
// additionally filtered to fall within [start, end]; files without a
// parseable date are always included.
func FindDailyLogs(dir string, start, end time.Time) ([]string, error) {
	timer := logging.StartTimer(logging.CategoryScan, "FindDailyLogs")
	defer timer.Stop()
	log := logging.Get(logging.CategoryScan)

	var results []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			name := info.Name()
			if path != dir && (strings.HasPrefix(name, ".") || excludedDirs[name]) {
				log.Debug("skipping excluded directory: %s", path)
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(path) != ".md" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		if !start.IsZero() && !end.IsZero() {
			if logDate, ok := parseDatedLogName(filepath.Base(path)); ok {
				if logDate.Before(start) || logDate.After(end) {
					return nil
				}
			}
		}

		results = append(results, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(results)
	log.Info("FindDailyLogs: found %d files under %s", len(results), dir)
	return results, nil
}

// parseDatedLogName extracts a date from "memory-YYYY-MM-DD.md" or
// "YYYY-MM-DD.md"; ok is false when the name doesn't match either form.
func parseDatedLogName(name string) (time.Time, bool) {
	m := datedLogPattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// ParseLogDate is the exported form of parseDatedLogName, used by the
// pipeline phases that need a file's log date (e.g. to build an
// Extraction's id or to decide archival eligibility).
func ParseLogDate(name string) (time.Time, bool) {
	return parseDatedLogName(name)
}

var hashtagPattern = regexp.MustCompile(`(?i)#([A-Za-z0-9_-]+)\b`)

const contextRadius = 20

// ExtractHashtags scans text for hashtags, validates and normalizes each
// per spec §3 entity 3, and groups them by normalized tag with per-tag
// frequency and occurrence context.
func ExtractHashtags(text, file string) model.DiscoveredTopics {
	topics := make(model.DiscoveredTopics)

	lineOffsets := lineStartOffsets(text)

	matches := hashtagPattern.FindAllStringSubmatchIndex(text, -1)
	for _, m := range matches {
		raw := text[m[2]:m[3]]
		tag, ok := normalizeTag(raw)
		if !ok {
			continue
		}

		line := lineForOffset(lineOffsets, m[0])
		context := surroundingContext(text, m[0], m[1])

		stats, ok := topics[tag]
		if !ok {
			stats = &model.TagStats{}
			topics[tag] = stats
		}
		stats.Count++
		stats.Occurrences = append(stats.Occurrences, model.HashtagOccurrence{
			Tag:     tag,
			File:    file,
			Line:    line,
			Context: context,
		})
	}

	return topics
}

// FindTags returns every valid hashtag in text, normalized, in first-seen
// order with duplicates removed. Used by Phase 2 to detect a section's
// tags before mapping them through the canonical map.
func FindTags(text string) []string {
	seen := make(map[string]bool)
	var tags []string

	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tag, ok := normalizeTag(m[1])
		if !ok || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// normalizeTag validates and lowercases a raw hashtag match. A tag is valid
// iff it matches [a-z0-9_-]+ after lowercasing, contains at least one
// letter, is not purely numeric, and is not all-uppercase with length >= 8
// in its original (pre-normalization) form.
func normalizeTag(raw string) (string, bool) {
	if isAllUpper(raw) && len(raw) >= 8 {
		return "", false
	}

	lower := strings.ToLower(raw)

	hasLetter := false
	hasNonDigit := false
	for _, r := range lower {
		if r >= 'a' && r <= 'z' {
			hasLetter = true
		}
		if !(r >= '0' && r <= '9') {
			hasNonDigit = true
		}
	}
	if !hasLetter {
		return "", false
	}
	if !hasNonDigit {
		return "", false
	}

	return lower, true
}

func isAllUpper(s string) bool {
	sawLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			sawLetter = true
		}
	}
	return sawLetter
}

func lineStartOffsets(text string) []int {
	offsets := []int{0}
	for i, r := range text {
		if r == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func lineForOffset(offsets []int, pos int) int {
	line := sort.Search(len(offsets), func(i int) bool { return offsets[i] > pos })
	return line
}

func surroundingContext(text string, start, end int) string {
	lo := start - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + contextRadius
	if hi > len(text) {
		hi = len(text)
	}
	return strings.TrimSpace(text[lo:hi])
}
