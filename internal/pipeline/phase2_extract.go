package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clawseedd/memory-polisher/internal/iox"
	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/mdsection"
	"github.com/clawseedd/memory-polisher/internal/model"
	"github.com/clawseedd/memory-polisher/internal/scan"
)

// extractConcurrency bounds how many daily logs Phase 2 parses at once
// (spec §5: the only legitimate within-phase concurrency, mirroring the
// teacher's semaphore-bounded filesystem walks via errgroup instead).
const extractConcurrency = 4

// RunPhase2 slices each daily log into sections, detects canonical tags per
// section, and writes one Extraction JSON record per qualifying section
// (spec §4.12).
func RunPhase2(ctx context.Context, deps *Deps, state *RunState, now time.Time) error {
	log := logging.Get(logging.CategoryPhase2)
	timer := logging.StartTimer(logging.CategoryPhase2, "RunPhase2")
	defer timer.Stop()

	lookback := deps.Config.Advanced.LookbackDays
	start := now.AddDate(0, 0, -lookback)

	files, err := scan.FindDailyLogs(deps.MemoryDir, start, now)
	if err != nil {
		return NewPhaseError(2, ClassIOTransient, fmt.Errorf("failed to list daily logs: %w", err))
	}

	extractionsDir := filepath.Join(deps.CacheDir, "extractions")
	perFile := make([][]model.Extraction, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractConcurrency)

	for i, rel := range files {
		i, rel := i, rel
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			ext, err := extractFromFile(deps, state, rel, extractionsDir, now)
			if err != nil {
				return err
			}
			perFile[i] = ext
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return NewPhaseError(2, ClassIOTransient, fmt.Errorf("extraction failed: %w", err))
	}

	var all []model.Extraction
	for _, ext := range perFile {
		all = append(all, ext...)
	}

	state.Extractions = all
	state.FilesProcessed = files
	state.Stats["extractions"] = len(all)
	state.advance(2)

	log.Info("phase 2 complete: files=%d extractions=%d", len(files), len(all))
	return nil
}

func extractFromFile(deps *Deps, state *RunState, rel, extractionsDir string, now time.Time) ([]model.Extraction, error) {
	abs := filepath.Join(deps.MemoryDir, rel)
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	datePrefix := "00000000"
	if date, ok := scan.ParseLogDate(filepath.Base(rel)); ok {
		datePrefix = date.Format("20060102")
	}

	sections := mdsection.Parse(string(content), rel)

	var extractions []model.Extraction
	for _, sec := range sections {
		if isPolishStub(sec.Content) {
			continue
		}

		rawTags := scan.FindTags(sec.Content)
		canonicalTags := mapAndDedupe(state.CanonicalMap, rawTags)
		if len(canonicalTags) == 0 {
			continue
		}

		id := fmt.Sprintf("%s-%02d", datePrefix, sec.Index)
		hash := sha256.Sum256([]byte(sec.Content))

		extraction := model.Extraction{
			ID:              id,
			SourceFile:      rel,
			SourceLineStart: sec.LineStart,
			SourceLineEnd:   sec.LineEnd,
			SectionTitle:    sec.Title,
			PrimaryTopic:    canonicalTags[0],
			SecondaryTopics: canonicalTags[1:],
			FullContent:     sec.Content,
			ContentHash:     hex.EncodeToString(hash[:]),
			ExtractedAt:     now,
		}

		data, err := json.MarshalIndent(extraction, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal extraction %s: %w", id, err)
		}
		if err := iox.WriteAtomic(filepath.Join(extractionsDir, id+".json"), data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write extraction %s: %w", id, err)
		}

		extractions = append(extractions, extraction)
	}
	return extractions, nil
}

// isPolishStub reports whether a section is already a stub left by a
// previous polish run (spec §4.12): it names a polish-target marker and
// references the Topics directory.
func isPolishStub(content string) bool {
	hasMarker := strings.Contains(content, "→ **Polished to") || strings.Contains(content, "→ **Primary:**")
	hasTopicsRef := strings.Contains(content, "Topics/")
	return hasMarker && hasTopicsRef
}

// mapAndDedupe resolves each raw tag through the canonical map and returns
// the result deduplicated, preserving first-seen order.
func mapAndDedupe(canonical *model.CanonicalMap, rawTags []string) []string {
	seen := make(map[string]bool, len(rawTags))
	var out []string
	for _, tag := range rawTags {
		resolved := tag
		if canonical != nil {
			resolved = canonical.Resolve(tag)
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		out = append(out, resolved)
	}
	return out
}
