package pipeline

import (
	"path/filepath"

	"github.com/clawseedd/memory-polisher/internal/backup"
	"github.com/clawseedd/memory-polisher/internal/checkpoint"
	"github.com/clawseedd/memory-polisher/internal/config"
	"github.com/clawseedd/memory-polisher/internal/embedding"
	"github.com/clawseedd/memory-polisher/internal/similarity"
	"github.com/clawseedd/memory-polisher/internal/txlog"
)

// Deps collects every collaborator a phase needs, resolved once by the
// Orchestrator from a workspace root and a Config.
type Deps struct {
	Config *config.Config

	BasePath   string // workspace root (W)
	MemoryDir  string // W/memory
	TopicsDir  string // W/memory/Topics
	ArchiveDir string // W/memory/Archive
	CacheDir   string // W/memory/.polish-cache
	ReportsDir string // W/memory/.polish-reports

	Backups     *backup.Store
	TxLog       *txlog.Log
	Checkpoints *checkpoint.Store
	Similarity  *similarity.Engine
	Embeddings  *embedding.Cache
}

// NewDeps resolves every workspace-relative path and constructs the
// collaborators Phase 0-6 share. The embedding cache is optional (nil when
// the configured method is levenshtein); callers that need semantic
// similarity pass a pre-built *embedding.Cache.
func NewDeps(basePath string, cfg *config.Config, cache *embedding.Cache) (*Deps, error) {
	memoryDir := filepath.Join(basePath, "memory")
	cacheDir := filepath.Join(memoryDir, cfg.Advanced.CacheDirectory)
	topicsDir := filepath.Join(memoryDir, cfg.Advanced.TopicsDirectory)
	archiveDir := filepath.Join(memoryDir, cfg.Advanced.ArchiveDirectory)
	reportsDir := filepath.Join(memoryDir, cfg.Logging.ReportLocation)

	backups, err := backup.New(filepath.Join(cacheDir, "backups"))
	if err != nil {
		return nil, err
	}

	log, err := txlog.Open(filepath.Join(cacheDir, "transaction.log"))
	if err != nil {
		return nil, err
	}

	checkpoints := checkpoint.New(filepath.Join(cacheDir, cfg.Recovery.CheckpointFile), basePath)

	simEngine := similarity.New(similarity.Config{
		Method:    similarity.Method(cfg.TopicSimilarity.Method),
		Threshold: cfg.TopicSimilarity.Threshold,
		Synonyms:  cfg.Synonyms,
		BatchSize: cfg.Performance.BatchSize,
	}, cache)

	return &Deps{
		Config:      cfg,
		BasePath:    basePath,
		MemoryDir:   memoryDir,
		TopicsDir:   topicsDir,
		ArchiveDir:  archiveDir,
		CacheDir:    cacheDir,
		ReportsDir:  reportsDir,
		Backups:     backups,
		TxLog:       log,
		Checkpoints: checkpoints,
		Similarity:  simEngine,
		Embeddings:  cache,
	}, nil
}

// Close releases any held resources (the transaction log's file handle).
func (d *Deps) Close() error {
	return d.TxLog.Close()
}
