package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/model"
	"github.com/clawseedd/memory-polisher/internal/scan"
)

// RunPhase1 discovers hashtags across the lookback window, filters by
// minimum frequency, ranks merge proposals, and folds them into a
// CanonicalMap (spec §4.11).
func RunPhase1(ctx context.Context, deps *Deps, state *RunState, now time.Time) error {
	log := logging.Get(logging.CategoryPhase1)
	timer := logging.StartTimer(logging.CategoryPhase1, "RunPhase1")
	defer timer.Stop()

	lookback := deps.Config.Advanced.LookbackDays
	start := now.AddDate(0, 0, -lookback)

	files, err := scan.FindDailyLogs(deps.MemoryDir, start, now)
	if err != nil {
		return NewPhaseError(1, ClassIOTransient, fmt.Errorf("failed to list daily logs: %w", err))
	}

	discovered := make(model.DiscoveredTopics)
	for _, rel := range files {
		abs := filepath.Join(deps.MemoryDir, rel)
		content, err := os.ReadFile(abs)
		if err != nil {
			return NewPhaseError(1, ClassIOTransient, fmt.Errorf("failed to read %s: %w", rel, err))
		}
		mergeDiscovered(discovered, scan.ExtractHashtags(string(content), rel))
	}

	minFreq := deps.Config.Advanced.MinTagFrequency
	for tag, stats := range discovered {
		if stats.Count < minFreq {
			delete(discovered, tag)
		}
	}

	tags := make([]string, 0, len(discovered))
	for tag := range discovered {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	proposals, err := deps.Similarity.ComputePairwiseSimilarity(ctx, tags, discovered)
	if err != nil {
		return NewPhaseError(1, ClassProvider, fmt.Errorf("similarity computation failed: %w", err))
	}

	canonical := model.NewCanonicalMap(discovered)
	for _, p := range proposals {
		canonical.ApplyMerge(p)
	}

	state.DiscoveredTopics = discovered
	state.MergeProposals = proposals
	state.CanonicalMap = canonical
	state.SimilarityMethod = string(deps.Config.TopicSimilarity.Method)
	state.Stats["tags_discovered"] = len(discovered)
	state.Stats["merge_proposals"] = len(proposals)
	state.advance(1)

	log.Info("phase 1 complete: tags=%d proposals=%d method=%s", len(discovered), len(proposals), state.SimilarityMethod)
	return nil
}

// mergeDiscovered folds src's per-tag counts and occurrences into dst.
func mergeDiscovered(dst, src model.DiscoveredTopics) {
	for tag, stats := range src {
		existing, ok := dst[tag]
		if !ok {
			dst[tag] = stats
			continue
		}
		existing.Count += stats.Count
		existing.Occurrences = append(existing.Occurrences, stats.Occurrences...)
	}
}
