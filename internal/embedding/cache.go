package embedding

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clawseedd/memory-polisher/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// Cache is a persistent, keyed store of embeddings backed by SQLite (spec
// §4.8). It sits in front of an Engine: GetEmbeddings only calls the engine
// for keys not already present, and any vector it returns was computed with
// the engine's current model_version.
type Cache struct {
	db     *sql.DB
	mu     sync.Mutex
	engine Engine
	dbPath string
}

// NewCache opens (creating if necessary) the embedding cache database at
// dbPath and wires it to engine.
func NewCache(dbPath string, engine Engine) (*Cache, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewCache")
	defer timer.Stop()
	log := logging.Get(logging.CategoryEmbedding)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and gives a large write speedup;
	// a crash can lose the most recent commit but never corrupts the file,
	// and a lost cache entry just means one extra provider call on resume.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("failed to set synchronous=NORMAL: %v", err)
	}

	c := &Cache{db: db, engine: engine, dbPath: dbPath}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("embedding cache ready at %s", dbPath)
	return c, nil
}

func (c *Cache) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		key TEXT PRIMARY KEY,
		bytes BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		computed_at DATETIME NOT NULL,
		model_version TEXT NOT NULL
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// GetEmbeddings resolves an embedding for every key, serving cache hits from
// disk and batching the rest to the engine at batchSize per round trip
// (spec §6 performance.batch_size). A hit whose stored model_version
// disagrees with the engine's current name is treated as a miss, so
// switching providers never serves stale vectors.
func (c *Cache) GetEmbeddings(ctx context.Context, keys []string, batchSize int) (map[string][]float32, error) {
	if batchSize <= 0 {
		batchSize = 10
	}
	log := logging.Get(logging.CategoryEmbedding)

	result := make(map[string][]float32, len(keys))
	var misses []string

	for _, key := range keys {
		vec, version, err := c.lookup(key)
		if err != nil {
			return nil, err
		}
		if vec != nil && version == c.engine.Name() {
			result[key] = vec
			continue
		}
		misses = append(misses, key)
	}

	log.Debug("embedding cache: %d hits, %d misses out of %d keys", len(keys)-len(misses), len(misses), len(keys))

	for start := 0; start < len(misses); start += batchSize {
		end := start + batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		vecs, err := c.engine.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding batch failed: %w", err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedding engine returned %d vectors for %d inputs", len(vecs), len(batch))
		}

		for i, key := range batch {
			if err := c.store(key, vecs[i], c.engine.Name()); err != nil {
				return nil, err
			}
			result[key] = vecs[i]
		}
	}

	return result, nil
}

func (c *Cache) lookup(key string) ([]float32, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	var dims int
	var version string
	row := c.db.QueryRow(`SELECT bytes, dimensions, model_version FROM embeddings WHERE key = ?`, key)
	err := row.Scan(&data, &dims, &version)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("embedding cache lookup failed for %q: %w", key, err)
	}

	vec, err := decodeVector(data, dims)
	if err != nil {
		return nil, "", err
	}
	return vec, version, nil
}

func (c *Cache) store(key string, vec []float32, version string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO embeddings (key, bytes, dimensions, computed_at, model_version)
		 VALUES (?, ?, ?, ?, ?)`,
		key, encodeVector(vec), len(vec), time.Now().UTC(), version,
	)
	if err != nil {
		return fmt.Errorf("embedding cache store failed for %q: %w", key, err)
	}
	return nil
}

// encodeVector packs a []float32 as little-endian bytes for BLOB storage.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks bytes into a []float32, validating the byte count
// matches the recorded dimensionality.
func decodeVector(data []byte, dims int) ([]float32, error) {
	if len(data) != dims*4 {
		return nil, fmt.Errorf("embedding cache corruption: expected %d bytes for %d dimensions, got %d", dims*4, dims, len(data))
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
