// Package model holds the shared data entities from spec §3 that flow
// between scan, extraction, organize, and checkpoint: the types every phase
// reads or writes, with no behavior of their own beyond small helpers.
package model

import "time"

// DailyLog is a parsed daily-log file: its path, content, and the sections
// found within it.
type DailyLog struct {
	Path     string    `json:"path"`
	Content  string    `json:"-"`
	Hash     string    `json:"hash"`
	Sections []Section `json:"-"`
}

// Section is one `##+`-delimited region of a markdown file.
type Section struct {
	Index     int      `json:"index"`
	Title     string   `json:"title"`
	Level     int      `json:"level"`
	LineStart int      `json:"line_start"`
	LineEnd   int       `json:"line_end"`
	Content   string   `json:"content"`
	Hashtags  []string `json:"hashtags,omitempty"`
}

// HashtagOccurrence is one validated, normalized hashtag sighting.
type HashtagOccurrence struct {
	Tag     string `json:"tag"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Context string `json:"context"`
}

// TagStats accumulates occurrences for one discovered tag.
type TagStats struct {
	Count       int                 `json:"count"`
	Occurrences []HashtagOccurrence `json:"occurrences"`
}

// DiscoveredTopics maps a normalized tag to its aggregate statistics,
// already filtered to count >= min_tag_frequency.
type DiscoveredTopics map[string]*TagStats

// MergeMethod identifies which similarity source produced a MergeProposal.
type MergeMethod string

const (
	MethodSynonymRule MergeMethod = "synonym_rule"
	MethodLevenshtein MergeMethod = "levenshtein"
	MethodEmbedding   MergeMethod = "embedding"
)

// MergeProposal proposes folding alias into canonical.
type MergeProposal struct {
	Canonical  string      `json:"canonical"`
	Alias      string      `json:"alias"`
	Confidence float64     `json:"confidence"`
	Method     MergeMethod `json:"method"`
}

// CanonicalEntry is one canonical tag's accumulated aliases and count.
type CanonicalEntry struct {
	Canonical string   `json:"canonical"`
	Aliases   []string `json:"aliases"`
	Count     int      `json:"count"`
}

// CanonicalMap is the merged view of discovered tags: every tag appears
// either as a canonical entry key or an aliasMap key, never both (I2).
type CanonicalMap struct {
	CanonicalMap map[string]*CanonicalEntry `json:"canonical_map"`
	AliasMap     map[string]string          `json:"alias_map"`
}

// NewCanonicalMap seeds a CanonicalMap with every discovered tag as its own
// canonical entry.
func NewCanonicalMap(discovered DiscoveredTopics) *CanonicalMap {
	cm := &CanonicalMap{
		CanonicalMap: make(map[string]*CanonicalEntry, len(discovered)),
		AliasMap:     make(map[string]string),
	}
	for tag, stats := range discovered {
		cm.CanonicalMap[tag] = &CanonicalEntry{
			Canonical: tag,
			Count:     stats.Count,
		}
	}
	return cm
}

// Resolve maps a tag through the alias map to its canonical form, or
// returns the tag unchanged if it is already canonical.
func (cm *CanonicalMap) Resolve(tag string) string {
	if canonical, ok := cm.AliasMap[tag]; ok {
		return canonical
	}
	return tag
}

// ApplyMerge folds alias into canonical if canonical's entry still exists:
// appends alias, folds in its count, removes alias's own entry, and records
// the alias mapping. No-op if canonical no longer exists (it may itself
// have been merged away by an earlier proposal).
func (cm *CanonicalMap) ApplyMerge(proposal MergeProposal) bool {
	canonicalEntry, ok := cm.CanonicalMap[proposal.Canonical]
	if !ok {
		return false
	}
	aliasEntry, ok := cm.CanonicalMap[proposal.Alias]
	if !ok {
		return false
	}

	canonicalEntry.Aliases = append(canonicalEntry.Aliases, proposal.Alias)
	canonicalEntry.Aliases = append(canonicalEntry.Aliases, aliasEntry.Aliases...)
	canonicalEntry.Count += aliasEntry.Count

	delete(cm.CanonicalMap, proposal.Alias)
	cm.AliasMap[proposal.Alias] = proposal.Canonical
	for _, nested := range aliasEntry.Aliases {
		cm.AliasMap[nested] = proposal.Canonical
	}

	return true
}

// Extraction is a content-addressed record of one section copied from a
// daily log into a topic file.
type Extraction struct {
	ID               string    `json:"id"`
	SourceFile       string    `json:"source_file"`
	SourceLineStart  int       `json:"source_line_start"`
	SourceLineEnd    int       `json:"source_line_end"`
	SectionTitle     string    `json:"section_title"`
	PrimaryTopic     string    `json:"primary_topic"`
	SecondaryTopics  []string  `json:"secondary_topics"`
	FullContent      string    `json:"full_content"`
	ContentHash      string    `json:"content_hash"`
	ExtractedAt      time.Time `json:"extracted_at"`
}

// BackupRecord describes one content-addressed backup copy.
type BackupRecord struct {
	Hash string `json:"hash"`
	Path string `json:"path"`
}

// TransactionStatus is the outcome recorded for a TransactionEntry.
type TransactionStatus string

const (
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"
)

// TransactionEntry is one line of the append-only transaction log.
type TransactionEntry struct {
	Timestamp   time.Time         `json:"timestamp"`
	Phase       int               `json:"phase"`
	Action      string            `json:"action"`
	Target      string            `json:"target,omitempty"`
	Hash        string            `json:"hash,omitempty"`
	Source      string            `json:"source,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Status      TransactionStatus `json:"status"`
	Error       string            `json:"error,omitempty"`
}

// Checkpoint is the persistent snapshot of a run's intermediate state.
type Checkpoint struct {
	Version          int                  `json:"version"`
	SessionID        string               `json:"session_id"`
	StartedAt        time.Time            `json:"started_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
	CurrentPhase     int                  `json:"current_phase"`
	CompletedSteps   []int                `json:"completed_steps"`
	Status           string               `json:"status"`
	Stats            map[string]int       `json:"stats,omitempty"`
	DiscoveredTopics DiscoveredTopics      `json:"discovered_topics,omitempty"`
	MergeProposals   []MergeProposal      `json:"merge_proposals,omitempty"`
	CanonicalMap     *CanonicalMap        `json:"canonical_map,omitempty"`
	Extractions      []Extraction         `json:"extractions,omitempty"`
	FilesProcessed   []string             `json:"files_processed,omitempty"`
	SimilarityMethod string               `json:"similarity_method,omitempty"`
	BasePath         string               `json:"base_path"`
}
