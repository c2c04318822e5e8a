// Package embedding implements the optional semantic embedding capability
// from spec §4.8: a persistent keyed cache in front of a pluggable
// provider. The provider itself is an external collaborator (spec §6) —
// this package defines its contract and ships one concrete adapter
// (Google GenAI) plus a Noop fallback so the similarity engine can degrade
// gracefully when no provider is configured or the provider fails.
package embedding

import (
	"context"
	"fmt"

	"github.com/clawseedd/memory-polisher/internal/logging"
)

// Engine generates vector embeddings for text. Implementations may be
// remote (GenAI) or a local no-op fallback.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one round trip
	// where the backend supports it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of vectors this engine produces.
	Dimensions() int

	// Name identifies the engine, recorded as model_version in the cache.
	Name() string
}

// HealthChecker is implemented by engines that can cheaply verify
// reachability before a batch is attempted.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config selects and parameterizes the embedding provider (spec §6
// topic_similarity.model: "auto" resolves to the GenAI engine below; any
// other configuration value that fails to construct an engine falls back
// to NoopEngine rather than failing the run).
type Config struct {
	APIKey     string `yaml:"-"` // supplied via environment, never persisted
	Model      string `yaml:"model"`
	TaskType   string `yaml:"task_type"`
	Dimensions int    `yaml:"dimensions"` // 0 uses the provider's own default
}

// DefaultConfig returns sensible defaults for the GenAI provider.
func DefaultConfig() Config {
	return Config{
		Model:      "gemini-embedding-001",
		TaskType:   "SEMANTIC_SIMILARITY",
		Dimensions: defaultGenAIDimensions,
	}
}

// NewEngine constructs the configured engine. A missing or invalid API key
// is not fatal — it returns a NoopEngine so callers can proceed with the
// mechanical similarity fallback (spec §4.9, provider error taxonomy §7b).
func NewEngine(cfg Config) Engine {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	if cfg.APIKey == "" {
		logging.Get(logging.CategoryEmbedding).Warn("no embedding API key configured, using noop engine")
		return NoopEngine{}
	}

	engine, err := NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.TaskType, cfg.Dimensions)
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Warn("failed to construct GenAI engine, falling back to noop: %v", err)
		return NoopEngine{}
	}

	logging.Get(logging.CategoryEmbedding).Info("embedding engine ready: name=%s dimensions=%d", engine.Name(), engine.Dimensions())
	return engine
}

// NoopEngine is the capability-absent variant (spec §9 design notes): any
// attempt to embed fails cleanly so the caller can fall back to mechanical
// similarity instead of panicking on a nil engine.
type NoopEngine struct{}

func (NoopEngine) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding provider not configured")
}

func (NoopEngine) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedding provider not configured")
}

func (NoopEngine) Dimensions() int { return 0 }
func (NoopEngine) Name() string    { return "noop" }
