package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/clawseedd/memory-polisher/internal/iox"
	"github.com/clawseedd/memory-polisher/internal/model"
)

var hashLinePattern = regexp.MustCompile(`\*\*Hash:\*\*\s*(\S+)`)

// applyMergeToTopicFiles folds the alias topic file's new entries into its
// canonical counterpart and archives the alias file (spec §4.13 "Then
// apply merges"). Returns false (no error) if the alias file never
// existed, which is not a failure — it just means nothing was extracted
// under that tag.
func applyMergeToTopicFiles(deps *Deps, proposal model.MergeProposal, now time.Time) (bool, error) {
	aliasPath, err := resolveTopicPath(deps.TopicsDir, proposal.Alias)
	if err != nil {
		return false, err
	}
	canonicalPath, err := resolveTopicPath(deps.TopicsDir, proposal.Canonical)
	if err != nil {
		return false, err
	}

	aliasContent, err := os.ReadFile(aliasPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read alias topic file %s: %w", aliasPath, err)
	}

	canonicalContent := ""
	if data, err := os.ReadFile(canonicalPath); err == nil {
		canonicalContent = string(data)
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read canonical topic file %s: %w", canonicalPath, err)
	}
	if canonicalContent == "" {
		canonicalContent = topicHeader(strings.TrimSuffix(filepath.Base(canonicalPath), ".md"), now)
	}

	existingHashes := make(map[string]bool)
	for _, m := range hashLinePattern.FindAllStringSubmatch(canonicalContent, -1) {
		existingHashes[m[1]] = true
	}

	var toAppend strings.Builder
	for _, block := range splitEntries(string(aliasContent)) {
		m := hashLinePattern.FindStringSubmatch(block)
		if m == nil || existingHashes[m[1]] {
			continue
		}
		existingHashes[m[1]] = true

		rewritten := rewriteTagReferences(block, proposal.Alias, proposal.Canonical)
		toAppend.WriteString(rewritten)
		toAppend.WriteString("\n\n---\n\n")
	}

	if toAppend.Len() > 0 {
		if err := iox.WriteAtomic(canonicalPath, []byte(canonicalContent+toAppend.String()), 0644); err != nil {
			return false, fmt.Errorf("failed to write merged canonical topic file %s: %w", canonicalPath, err)
		}
	}

	archiveDir := filepath.Join(deps.TopicsDir, ".archive")
	archivePath := filepath.Join(archiveDir, fmt.Sprintf("%s_merged_%s.md", strings.TrimSuffix(filepath.Base(aliasPath), ".md"), now.Format("2006-01-02")))

	banner := fmt.Sprintf("> **Merged** into %s on %s (confidence %.2f, method %s)\n>\n> This topic file has been consolidated; see [%s.md](../%s.md).\n\n---\n\n",
		proposal.Canonical, now.Format("2006-01-02"), proposal.Confidence, proposal.Method, proposal.Canonical, proposal.Canonical)
	if err := iox.WriteAtomic(archivePath, []byte(banner+string(aliasContent)), 0644); err != nil {
		return false, fmt.Errorf("failed to archive merged alias file %s: %w", aliasPath, err)
	}
	if err := os.Remove(aliasPath); err != nil {
		return false, fmt.Errorf("failed to remove merged alias file %s: %w", aliasPath, err)
	}

	if err := deps.TxLog.Append(model.TransactionEntry{
		Phase:       3,
		Action:      "merge_topic_file",
		Source:      aliasPath,
		Destination: canonicalPath,
		Status:      model.StatusSuccess,
	}); err != nil {
		return false, fmt.Errorf("failed to log merge_topic_file transaction: %w", err)
	}

	return true, nil
}

// splitEntries splits a topic file's content on "\n---\n" (spec §4.13) and
// keeps only blocks that look like entries (carry a **Hash:** line),
// dropping the file header and any non-entry (e.g. cross-reference) blocks.
func splitEntries(content string) []string {
	var entries []string
	for _, block := range strings.Split(content, "\n---\n") {
		if hashLinePattern.MatchString(block) {
			entries = append(entries, strings.TrimSpace(block))
		}
	}
	return entries
}

// rewriteTagReferences replaces "#alias" occurrences with "#canonical" in
// an entry being folded into the canonical topic file.
func rewriteTagReferences(block, alias, canonical string) string {
	pattern := regexp.MustCompile(`#` + regexp.QuoteMeta(alias) + `\b`)
	return pattern.ReplaceAllString(block, "#"+canonical)
}
