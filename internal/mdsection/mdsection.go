// Package mdsection implements the line-based markdown section parser from
// spec §4.6. Sections are delimited by `##+`-style headers; the contract is
// line spans, not an AST, because Phase 4 depends on the same line numbers
// Phase 2 recorded staying stable between passes.
package mdsection

import (
	"path/filepath"
	"regexp"
	"strings"
)

var headerPattern = regexp.MustCompile(`^(#{2,})\s+(.+)$`)

// Section is one parsed region of a markdown file.
type Section struct {
	Index     int
	Title     string
	Level     int
	LineStart int // 0-indexed, inclusive
	LineEnd   int // 0-indexed, inclusive
	Content   string
}

// Parse splits text into sections at `##+` headers. A section runs from its
// header line to the line before the next header (or EOF), with trailing
// blank lines trimmed. Sections with no non-whitespace content after the
// header are dropped. If no headers are found and the file has content, one
// synthetic section covering the whole file is emitted, titled after
// filename (without its extension).
func Parse(text, filename string) []Section {
	lines := strings.Split(text, "\n")

	type headerLine struct {
		line  int
		level int
		title string
	}

	var headers []headerLine
	for i, line := range lines {
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			headers = append(headers, headerLine{
				line:  i,
				level: len(m[1]),
				title: strings.TrimSpace(m[2]),
			})
		}
	}

	if len(headers) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		base := filepath.Base(filename)
		title := strings.TrimSuffix(base, filepath.Ext(base))
		end := trimTrailingBlank(lines, len(lines)-1)
		return []Section{{
			Index:     0,
			Title:     title,
			Level:     0,
			LineStart: 0,
			LineEnd:   end,
			Content:   strings.Join(lines[0:end+1], "\n"),
		}}
	}

	var sections []Section
	idx := 0
	for i, h := range headers {
		start := h.line
		end := len(lines) - 1
		if i+1 < len(headers) {
			end = headers[i+1].line - 1
		}
		end = trimTrailingBlank(lines, end)
		if end < start {
			continue
		}

		content := strings.Join(lines[start:end+1], "\n")
		if !hasNonHeaderContent(lines[start:end+1]) {
			continue
		}

		sections = append(sections, Section{
			Index:     idx,
			Title:     h.title,
			Level:     h.level,
			LineStart: start,
			LineEnd:   end,
			Content:   content,
		})
		idx++
	}

	return sections
}

// trimTrailingBlank walks backward from end while lines are blank,
// returning the new (inclusive) end index. Never goes below start-equivalent
// bounds handled by the caller.
func trimTrailingBlank(lines []string, end int) int {
	for end > 0 && strings.TrimSpace(lines[end]) == "" {
		end--
	}
	return end
}

// hasNonHeaderContent reports whether any line after the header (index 0 of
// the slice) has non-whitespace content.
func hasNonHeaderContent(sectionLines []string) bool {
	for _, l := range sectionLines[1:] {
		if strings.TrimSpace(l) != "" {
			return true
		}
	}
	return false
}
