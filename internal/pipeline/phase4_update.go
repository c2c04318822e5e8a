package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/clawseedd/memory-polisher/internal/iox"
	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/model"
	"github.com/clawseedd/memory-polisher/internal/scan"
)

// maxShrinkRatio bounds how much a daily log may shrink after stub
// replacement before Phase 4 treats it as corruption (spec §4.14 step 3).
const maxShrinkRatio = 0.95

// RunPhase4 replaces each extracted section with a stub pointer, archives
// eligible dated logs, and heals known-bad legacy link patterns inside
// Topics/ (spec §4.14).
func RunPhase4(deps *Deps, state *RunState, now time.Time) error {
	log := logging.Get(logging.CategoryPhase4)
	timer := logging.StartTimer(logging.CategoryPhase4, "RunPhase4")
	defer timer.Stop()

	bySource := groupBySourceFile(state.Extractions)

	for sourceFile, exts := range bySource {
		if err := replaceSectionsWithStubs(deps, sourceFile, exts, now); err != nil {
			return NewPhaseError(4, ClassIntegrity, err)
		}
	}

	archivedThisRun := map[string]int{}
	if deps.Config.Archive.Enabled {
		archived, err := archiveEligibleLogs(deps, now)
		if err != nil {
			return NewPhaseError(4, ClassIOTransient, err)
		}
		archivedThisRun = archived
	}

	if err := healLinks(deps.TopicsDir, archivedThisRun); err != nil {
		return NewPhaseError(4, ClassIOTransient, err)
	}

	state.Stats["files_updated"] = len(bySource)
	state.Stats["archived"] = len(archivedThisRun)
	state.advance(4)

	log.Info("phase 4 complete: files_updated=%d archived=%d", len(bySource), len(archivedThisRun))
	return nil
}

func groupBySourceFile(extractions []model.Extraction) map[string][]model.Extraction {
	grouped := make(map[string][]model.Extraction)
	for _, e := range extractions {
		grouped[e.SourceFile] = append(grouped[e.SourceFile], e)
	}
	return grouped
}

// replaceSectionsWithStubs rewrites sourceFile in place: every extracted
// section's line span is replaced with a stub, processed bottom-up
// (descending source_line_start) so earlier replacements never shift
// later ranges still to be processed (spec §5 ordering guarantee).
func replaceSectionsWithStubs(deps *Deps, sourceFile string, exts []model.Extraction, now time.Time) error {
	abs := filepath.Join(deps.MemoryDir, sourceFile)

	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", sourceFile, err)
	}
	preHash := iox.HashBytes(content)

	if !deps.Backups.Exists(preHash) {
		if _, _, err := deps.Backups.Create(content, preHash); err != nil {
			return fmt.Errorf("failed to back up %s before update: %w", sourceFile, err)
		}
	}

	lines := strings.Split(string(content), "\n")

	sorted := make([]model.Extraction, len(exts))
	copy(sorted, exts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SourceLineStart > sorted[j].SourceLineStart
	})

	for _, ext := range sorted {
		if ext.SourceLineStart < 0 || ext.SourceLineEnd >= len(lines) || ext.SourceLineStart > ext.SourceLineEnd {
			continue
		}
		stub := buildStub(ext, now)
		lines = append(lines[:ext.SourceLineStart], append([]string{stub}, lines[ext.SourceLineEnd+1:]...)...)
	}

	rebuilt := strings.Join(lines, "\n")
	if strings.TrimSpace(rebuilt) == "" {
		return fmt.Errorf("rebuilt content for %s is empty", sourceFile)
	}
	if float64(len(rebuilt)) < float64(len(content))*(1-maxShrinkRatio) {
		return fmt.Errorf("rebuilt content for %s shrank by more than %.0f%%", sourceFile, maxShrinkRatio*100)
	}

	if err := iox.WriteAtomic(abs, []byte(rebuilt), 0644); err != nil {
		return fmt.Errorf("failed to write updated %s: %w", sourceFile, err)
	}

	return deps.TxLog.Append(model.TransactionEntry{
		Phase:  4,
		Action: "replace_stubs",
		Target: sourceFile,
		Hash:   preHash,
		Status: model.StatusSuccess,
	})
}

// buildStub renders the replacement text for one extracted section (spec
// §4.14 step 2).
func buildStub(ext model.Extraction, now time.Time) string {
	date := entryDate(ext)
	today := now.Format("2006-01-02")
	primaryName := sanitizeTopicName(ext.PrimaryTopic)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n", ext.SectionTitle))

	if len(ext.SecondaryTopics) == 0 {
		sb.WriteString(fmt.Sprintf("→ **Polished to [Topics/%s.md](Topics/%s.md#%s)** on %s", primaryName, primaryName, date, today))
		return sb.String()
	}

	var secondaries []string
	for _, s := range ext.SecondaryTopics {
		secondaries = append(secondaries, sanitizeTopicName(s))
	}
	sb.WriteString(fmt.Sprintf("→ **Primary:** [Topics/%s.md](Topics/%s.md#%s)\n", primaryName, primaryName, date))
	sb.WriteString(fmt.Sprintf("→ **Also in:** %s\n", strings.Join(secondaries, ", ")))

	tags := "#" + ext.PrimaryTopic
	for _, s := range ext.SecondaryTopics {
		tags += " #" + s
	}
	sb.WriteString(fmt.Sprintf("📎 Topics: %s", tags))
	return sb.String()
}

// archiveEligibleLogs moves every dated log older than
// today - grace_period_days into memory/Archive/<year>/ (spec §4.14),
// returning a map of archived log basename to its archive year so link
// healing can rewrite references to them.
func archiveEligibleLogs(deps *Deps, now time.Time) (map[string]int, error) {
	grace := deps.Config.Archive.GracePeriodDays
	cutoff := now.AddDate(0, 0, -grace)

	files, err := scan.FindDailyLogs(deps.MemoryDir, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to list daily logs for archiving: %w", err)
	}

	archived := make(map[string]int)
	for _, rel := range files {
		date, ok := scan.ParseLogDate(filepath.Base(rel))
		if !ok || !date.Before(cutoff) {
			continue
		}

		src := filepath.Join(deps.MemoryDir, rel)
		destDir := filepath.Join(deps.ArchiveDir, fmt.Sprintf("%d", date.Year()))
		dest := filepath.Join(destDir, filepath.Base(rel))

		if err := archiveOneFile(deps, src, dest, rel, now); err != nil {
			return archived, err
		}
		archived[filepath.Base(rel)] = date.Year()
	}
	return archived, nil
}

func archiveOneFile(deps *Deps, src, dest, rel string, now time.Time) error {
	srcData, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s for archiving: %w", rel, err)
	}

	if destData, err := os.ReadFile(dest); err == nil {
		if iox.HashBytes(destData) == iox.HashBytes(srcData) {
			if err := os.Remove(src); err != nil {
				return fmt.Errorf("failed to remove archived duplicate %s: %w", rel, err)
			}
			return logArchiveTx(deps, rel, dest)
		}
		dest = fmt.Sprintf("%s_conflict_%d", dest, now.UnixMilli())
	}

	if err := iox.MoveSafe(src, dest); err != nil {
		return fmt.Errorf("failed to archive %s: %w", rel, err)
	}
	return logArchiveTx(deps, rel, dest)
}

func logArchiveTx(deps *Deps, source, destination string) error {
	return deps.TxLog.Append(model.TransactionEntry{
		Phase:       4,
		Action:      "archive",
		Source:      source,
		Destination: destination,
		Status:      model.StatusSuccess,
	})
}

const unknownAnchorOld = "#unknown)"

// healLinks repairs known-bad legacy link patterns inside every file under
// topicsDir (spec §4.14 "Link healing"). It runs unconditionally, not only
// after archiving. archivedThisRun maps an archived log's basename to the
// year it was archived under, so references to it can be healed to point
// at Archive/<year>/<log>.
func healLinks(topicsDir string, archivedThisRun map[string]int) error {
	return filepath.Walk(topicsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s for link healing: %w", path, err)
		}

		healed := healLinkText(string(data), archivedThisRun)
		if healed == string(data) {
			return nil
		}
		return iox.WriteAtomic(path, []byte(healed), 0644)
	})
}

func healLinkText(text string, archivedThisRun map[string]int) string {
	text = strings.ReplaceAll(text, unknownAnchorOld, ")")

	// Archived-log backlinks (written by Phase 3 as "](../<log>#L<n>)")
	// need "Archive/<year>/" spliced in ahead of the filename, since the
	// log no longer lives directly under memory/. This must run before the
	// sibling-topic rewrite below so the now-multi-segment archive path is
	// recognized and left alone by it.
	for log, year := range archivedThisRun {
		text = strings.ReplaceAll(text, "](../"+log, fmt.Sprintf("](../Archive/%d/%s", year, log))
	}

	// Rewrite "](../<Name>.md...)" and "](Topics/<Name>.md...)" sibling-
	// topic links (with or without a trailing "#<date>" anchor, spec
	// §4.13's cross-reference stub and §4.14's literal heal pattern) to
	// "](<Name>.md...)". A daily-log reference is recognized by its
	// filename parsing as a dated log and is left untouched whenever it
	// was not archived this run, since "../<log>" is already the correct
	// path from a file directly under Topics/ back to memory/.
	text = rewriteSiblingLink(text, "](../")
	text = rewriteSiblingLink(text, "](Topics/")

	return text
}

// rewriteSiblingLink strips the from prefix off every markdown link target
// in text whose filename names a sibling topic file rather than a daily
// log or an already-healed multi-segment path (e.g. "Archive/<year>/..."),
// turning "](../Python.md#2026-07-30)" into "](Python.md#2026-07-30)"
// while leaving "](../2026-07-30.md#L1)" and "](../Archive/2026/...)" as-is.
func rewriteSiblingLink(text, from string) string {
	const to = "]("
	start := 0
	for {
		rel := strings.Index(text[start:], from)
		if rel < 0 {
			return text
		}
		idx := start + rel

		rest := text[idx+len(from):]
		nameEnd := strings.IndexAny(rest, ")#")
		if nameEnd < 0 {
			return text
		}
		name := rest[:nameEnd]

		if strings.ContainsRune(name, '/') {
			start = idx + len(from)
			continue
		}
		if _, isDatedLog := scan.ParseLogDate(name); isDatedLog {
			start = idx + len(from)
			continue
		}

		text = text[:idx] + to + rest
		start = idx + len(to)
	}
}
