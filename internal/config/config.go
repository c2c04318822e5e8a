// Package config defines the recognized configuration schema for the
// memory-polisher pipeline (spec §6). Parsing CLI flags and validating the
// on-disk config file are the CLI's job (cmd/polish); this package owns the
// schema, its defaults, and a reference YAML loader so the core can be
// exercised without a hand-rolled flag parser duplicating these fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ExecutionMode selects how aggressively the pipeline processes logs.
type ExecutionMode string

const (
	ExecutionMechanical ExecutionMode = "mechanical"
	ExecutionEnhanced   ExecutionMode = "enhanced"
)

// SimilarityMethod selects the similarity source used by Phase 1.
type SimilarityMethod string

const (
	SimilarityLevenshtein SimilarityMethod = "levenshtein"
	SimilarityEmbedding   SimilarityMethod = "embedding"
)

// TopicSimilarityConfig controls the similarity engine (spec §4.9).
type TopicSimilarityConfig struct {
	Method     SimilarityMethod `yaml:"method"`
	Threshold  float64          `yaml:"threshold"`
	Model      string           `yaml:"model,omitempty"`      // "auto" or a path
	Dimensions int              `yaml:"dimensions,omitempty"`
}

// AdvancedConfig controls scan window, tag filtering, and directory layout.
type AdvancedConfig struct {
	LookbackDays     int    `yaml:"lookback_days"`
	MinTagFrequency  int    `yaml:"min_tag_frequency"`
	TopicsDirectory  string `yaml:"topics_directory"`
	ArchiveDirectory string `yaml:"archive_directory"`
	CacheDirectory   string `yaml:"cache_directory"`
}

// ArchiveConfig controls Phase 4's archival step.
type ArchiveConfig struct {
	Enabled         bool `yaml:"enabled"`
	GracePeriodDays int  `yaml:"grace_period_days"`
}

// RecoveryConfig controls checkpointing.
type RecoveryConfig struct {
	EnableCheckpoints bool   `yaml:"enable_checkpoints"`
	CheckpointFile    string `yaml:"checkpoint_file"`
}

// LoggingConfig controls verbosity and report placement.
type LoggingConfig struct {
	Verbose        bool   `yaml:"verbose"`
	ReportLocation string `yaml:"report_location"`
}

// PerformanceConfig controls batching for the embedding provider.
type PerformanceConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// CleanupConfig controls TTL-based cache cleanup (hours; spec §9 open
// question (c) resolves the ambiguous unit as hours).
type CleanupConfig struct {
	AutoCleanup          bool `yaml:"auto_cleanup"`
	KeepSessionCacheHours int  `yaml:"keep_session_cache_hours"`
}

// Config holds the full recognized configuration record (spec §6).
type Config struct {
	ExecutionMode    ExecutionMode         `yaml:"execution_mode"`
	TopicSimilarity  TopicSimilarityConfig `yaml:"topic_similarity"`
	Synonyms         [][]string            `yaml:"synonyms"`
	Advanced         AdvancedConfig        `yaml:"advanced"`
	Archive          ArchiveConfig         `yaml:"archive"`
	Recovery         RecoveryConfig        `yaml:"recovery"`
	Logging          LoggingConfig         `yaml:"logging"`
	Performance      PerformanceConfig     `yaml:"performance"`
	Cleanup          CleanupConfig         `yaml:"cleanup"`
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		ExecutionMode: ExecutionMechanical,
		TopicSimilarity: TopicSimilarityConfig{
			Method:    SimilarityLevenshtein,
			Threshold: 0.8,
		},
		Synonyms: defaultSynonyms(),
		Advanced: AdvancedConfig{
			LookbackDays:     7,
			MinTagFrequency:  2,
			TopicsDirectory:  "Topics",
			ArchiveDirectory: "Archive",
			CacheDirectory:   ".polish-cache",
		},
		Archive: ArchiveConfig{
			Enabled:         true,
			GracePeriodDays: 3,
		},
		Recovery: RecoveryConfig{
			EnableCheckpoints: true,
			CheckpointFile:    "checkpoint.json",
		},
		Logging: LoggingConfig{
			Verbose:        false,
			ReportLocation: ".polish-reports",
		},
		Performance: PerformanceConfig{
			BatchSize: 10,
		},
		Cleanup: CleanupConfig{
			AutoCleanup:           true,
			KeepSessionCacheHours: 168, // 7 days
		},
	}
}

// defaultSynonyms is a small starter set of merge rules; real deployments
// extend this from their own config file.
func defaultSynonyms() [][]string {
	return [][]string{
		{"trading", "trade", "trades"},
		{"python", "py"},
		{"golang", "go"},
		{"javascript", "js"},
		{"typescript", "ts"},
		{"documentation", "docs", "doc"},
		{"configuration", "config", "cfg"},
	}
}

// Load reads a YAML config file, falling back to DefaultConfig if the file
// does not exist (a fresh workspace should run with sane defaults).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save writes the config as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
