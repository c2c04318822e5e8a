package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clawseedd/memory-polisher/internal/config"
	"github.com/clawseedd/memory-polisher/internal/embedding"
	"github.com/clawseedd/memory-polisher/internal/pipeline"
)

const configFileName = "polish.yaml"

// loadAndApplyOverrides loads the workspace config (or its defaults) and
// applies the CLI flag overrides spec §6 names.
func loadAndApplyOverrides(workspaceRoot string) (*config.Config, error) {
	cfg, err := config.Load(filepath.Join(workspaceRoot, configFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if flagArchive != "" {
		cfg.Archive.Enabled = flagArchive == "true"
	}
	if flagLookbackDays > 0 {
		cfg.Advanced.LookbackDays = flagLookbackDays
	}
	if flagVerbose {
		cfg.Logging.Verbose = true
	}

	return cfg, nil
}

// buildDeps resolves a *pipeline.Deps for workspaceRoot, constructing an
// embedding cache only when the configured similarity method needs one.
func buildDeps(workspaceRoot string, cfg *config.Config) (*pipeline.Deps, error) {
	var cache *embedding.Cache
	if cfg.TopicSimilarity.Method == config.SimilarityEmbedding {
		engineCfg := embedding.DefaultConfig()
		engineCfg.APIKey = os.Getenv("GEMINI_API_KEY")
		if cfg.TopicSimilarity.Model != "" && cfg.TopicSimilarity.Model != "auto" {
			engineCfg.Model = cfg.TopicSimilarity.Model
		}
		if cfg.TopicSimilarity.Dimensions > 0 {
			engineCfg.Dimensions = cfg.TopicSimilarity.Dimensions
		}
		engine := embedding.NewEngine(engineCfg)
		dbPath := filepath.Join(workspaceRoot, "memory", cfg.Advanced.CacheDirectory, "embeddings", "embeddings.db")
		var err error
		cache, err = embedding.NewCache(dbPath, engine)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
	}

	return pipeline.NewDeps(workspaceRoot, cfg, cache)
}

// runPipeline is rootCmd's default action: load config, resolve Deps, and
// run the Orchestrator once.
func runPipeline(ctx context.Context) error {
	cfg, err := loadAndApplyOverrides(flagWorkspace)
	if err != nil {
		return err
	}

	deps, err := buildDeps(flagWorkspace, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	opts := pipeline.Options{
		DryRun:          flagDryRun,
		NoResume:        flagNoResume,
		ClearCheckpoint: flagClearCheckpoint,
	}
	if flagForceFromPhase >= 0 {
		phase := flagForceFromPhase
		opts.ForceFromPhase = &phase
	}

	state, err := pipeline.Run(ctx, deps, opts, time.Now())
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	fmt.Printf("session %s: status=%s files_processed=%d extractions=%d\n",
		state.SessionID, state.Status, len(state.FilesProcessed), len(state.Extractions))
	return nil
}
