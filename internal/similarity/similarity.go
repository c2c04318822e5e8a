// Package similarity implements the merge-proposal engine from spec §4.9:
// synonym rules, mechanical (Levenshtein-based) matching, and an optional
// semantic (embedding) pass, concatenated, deduplicated, and sorted by
// confidence.
package similarity

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/clawseedd/memory-polisher/internal/embedding"
	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/mathx"
	"github.com/clawseedd/memory-polisher/internal/model"
)

// Method selects which similarity source(s) the engine runs.
type Method string

const (
	MethodLevenshtein Method = "levenshtein"
	MethodEmbedding   Method = "embedding"
)

// Config parameterizes the engine (mirrors config.TopicSimilarityConfig).
type Config struct {
	Method     Method
	Threshold  float64
	Synonyms   [][]string
	BatchSize  int
}

// Engine computes pairwise merge proposals across discovered tags.
type Engine struct {
	cfg   Config
	cache *embedding.Cache
}

// New returns an Engine. cache may be nil when Config.Method is
// MethodLevenshtein; it is required (and used) only for MethodEmbedding.
func New(cfg Config, cache *embedding.Cache) *Engine {
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Engine{cfg: cfg, cache: cache}
}

// ComputePairwiseSimilarity returns an ordered list of MergeProposal built
// from synonym rules, mechanical matching, and (if configured) semantic
// embeddings, deduplicated by (alias, canonical) and sorted by confidence
// descending.
func (e *Engine) ComputePairwiseSimilarity(ctx context.Context, tags []string, discovered model.DiscoveredTopics) ([]model.MergeProposal, error) {
	log := logging.Get(logging.CategorySimilarity)
	timer := logging.StartTimer(logging.CategorySimilarity, "ComputePairwiseSimilarity")
	defer timer.Stop()

	var proposals []model.MergeProposal

	proposals = append(proposals, e.synonymProposals(tags)...)

	if e.cfg.Method == MethodEmbedding && e.cache != nil {
		semantic, err := e.semanticProposals(ctx, tags, discovered)
		if err != nil {
			log.Warn("semantic similarity failed, falling back to mechanical: %v", err)
			proposals = append(proposals, e.mechanicalProposals(tags, discovered)...)
		} else {
			proposals = append(proposals, semantic...)
		}
	} else {
		proposals = append(proposals, e.mechanicalProposals(tags, discovered)...)
	}

	proposals = dedupeAndSort(proposals)
	log.Info("computed %d merge proposals across %d tags", len(proposals), len(tags))
	return proposals, nil
}

// synonymProposals applies each synonym rule (confidence 1.0).
func (e *Engine) synonymProposals(tags []string) []model.MergeProposal {
	present := make(map[string]bool, len(tags))
	for _, t := range tags {
		present[t] = true
	}

	var proposals []model.MergeProposal
	for _, rule := range e.cfg.Synonyms {
		if len(rule) == 0 {
			continue
		}
		preferred := rule[0]
		alts := rule[1:]

		if present[preferred] {
			for _, alt := range alts {
				if present[alt] {
					proposals = append(proposals, model.MergeProposal{
						Canonical:  preferred,
						Alias:      alt,
						Confidence: 1.0,
						Method:     model.MethodSynonymRule,
					})
				}
			}
			continue
		}

		var presentAlts []string
		for _, alt := range alts {
			if present[alt] {
				presentAlts = append(presentAlts, alt)
			}
		}
		if len(presentAlts) >= 2 {
			canonical := presentAlts[0]
			for _, alt := range presentAlts[1:] {
				proposals = append(proposals, model.MergeProposal{
					Canonical:  canonical,
					Alias:      alt,
					Confidence: 1.0,
					Method:     model.MethodSynonymRule,
				})
			}
		}
	}
	return proposals
}

// mechanicalProposals computes Levenshtein-based similarity for each
// distinct unordered pair of tags (spec §4.9.2).
func (e *Engine) mechanicalProposals(tags []string, discovered model.DiscoveredTopics) []model.MergeProposal {
	sorted := sortedCopy(tags)

	var proposals []model.MergeProposal
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			if shouldSkip(a, b) {
				continue
			}

			score := mechanicalScore(a, b)
			if score < e.cfg.Threshold {
				continue
			}

			canonical, alias := pickCanonical(a, b, discovered)
			proposals = append(proposals, model.MergeProposal{
				Canonical:  canonical,
				Alias:      alias,
				Confidence: score,
				Method:     model.MethodLevenshtein,
			})
		}
	}
	return proposals
}

// mechanicalScore computes the Levenshtein-based similarity score with the
// containment, abbreviation, and common-prefix bonuses from spec §4.9.2,
// capped at 1.0.
func mechanicalScore(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	score := 1.0
	if maxLen > 0 {
		score = 1 - float64(mathx.Levenshtein(a, b))/float64(maxLen)
	}

	shorter, longer := a, b
	if len(b) < len(a) {
		shorter, longer = b, a
	}

	contains := len(a) != len(b) && strings.Contains(longer, shorter)
	if contains {
		score += 0.25
		if len(shorter) <= 3 && strings.HasPrefix(longer, shorter) {
			score += 0.5
		}
	}

	if commonPrefixLen(a, b) >= 3 {
		score += 0.30
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// shouldSkip applies the skip heuristic from spec §4.9.1.
func shouldSkip(a, b string) bool {
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return false
	}

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if math.Abs(float64(len(a)-len(b))) <= 0.5*float64(maxLen) {
		return false
	}

	if sharedFirstThree(a, b) {
		return false
	}

	return true
}

func sharedFirstThree(a, b string) bool {
	la, lb := len(a), len(b)
	limA, limB := 3, 3
	if la < limA {
		limA = la
	}
	if lb < limB {
		limB = lb
	}
	setA := make(map[byte]bool, limA)
	for i := 0; i < limA; i++ {
		setA[a[i]] = true
	}
	for i := 0; i < limB; i++ {
		if setA[b[i]] {
			return true
		}
	}
	return false
}

// pickCanonical returns (canonical, alias) for a pair, preferring the tag
// with higher discovered frequency; ties break to the lexicographically
// first of the two.
func pickCanonical(a, b string, discovered model.DiscoveredTopics) (string, string) {
	countA, countB := 0, 0
	if s, ok := discovered[a]; ok {
		countA = s.Count
	}
	if s, ok := discovered[b]; ok {
		countB = s.Count
	}

	if countA > countB {
		return a, b
	}
	if countB > countA {
		return b, a
	}
	if a < b {
		return a, b
	}
	return b, a
}

// semanticProposals computes cosine-similarity-based proposals using
// cached/provider embeddings (spec §4.9.3).
func (e *Engine) semanticProposals(ctx context.Context, tags []string, discovered model.DiscoveredTopics) ([]model.MergeProposal, error) {
	vectors, err := e.cache.GetEmbeddings(ctx, tags, e.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	sorted := sortedCopy(tags)

	var proposals []model.MergeProposal
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]

			contains := strings.Contains(a, b) || strings.Contains(b, a)
			if !contains && shouldSkip(a, b) {
				continue
			}

			va, okA := vectors[a]
			vb, okB := vectors[b]
			if !okA || !okB {
				continue
			}

			score, err := mathx.CosineSimilarity32(va, vb)
			if err != nil {
				continue
			}
			if score < e.cfg.Threshold {
				continue
			}

			canonical, alias := pickCanonical(a, b, discovered)
			proposals = append(proposals, model.MergeProposal{
				Canonical:  canonical,
				Alias:      alias,
				Confidence: score,
				Method:     model.MethodEmbedding,
			})
		}
	}
	return proposals, nil
}

// dedupeAndSort removes duplicate (alias, canonical) pairs, keeping the
// highest-confidence instance, and sorts the result by confidence
// descending.
func dedupeAndSort(proposals []model.MergeProposal) []model.MergeProposal {
	best := make(map[[2]string]model.MergeProposal)
	var order [][2]string

	for _, p := range proposals {
		key := [2]string{p.Alias, p.Canonical}
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = p
			continue
		}
		if p.Confidence > existing.Confidence {
			best[key] = p
		}
	}

	result := make([]model.MergeProposal, 0, len(order))
	for _, key := range order {
		result = append(result, best[key])
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Confidence > result[j].Confidence
	})
	return result
}

func sortedCopy(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	sort.Strings(out)
	return out
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
