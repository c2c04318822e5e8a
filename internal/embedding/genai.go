package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/clawseedd/memory-polisher/internal/logging"

	"google.golang.org/genai"
)

// maxBatchSize is the maximum number of texts allowed in a single GenAI batch
// request; the API returns 400 if more than 100 requests are in one batch.
const maxBatchSize = 100

// defaultGenAIDimensions is gemini-embedding-001's native output size, used
// when topic_similarity.dimensions is unset (0) in config.
const defaultGenAIDimensions = 3072

func int32Ptr(i int32) *int32 {
	return &i
}

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client     *genai.Client
	model      string
	taskType   string
	dimensions int
}

// NewGenAIEngine creates a new GenAI embedding engine. dimensions of 0
// falls back to defaultGenAIDimensions.
func NewGenAIEngine(apiKey, model, taskType string, dimensions int) (*GenAIEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewGenAIEngine")
	defer timer.Stop()
	log := logging.Get(logging.CategoryEmbedding)

	log.Info("creating GenAI embedding engine")

	if apiKey == "" {
		log.Error("GenAI API key is required but not provided")
		return nil, fmt.Errorf("GenAI API key is required")
	}
	log.Debug("GenAI API key provided (length=%d)", len(apiKey))

	if model == "" {
		model = "gemini-embedding-001"
		log.Debug("GenAI model defaulted to: %s", model)
	}

	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
		log.Debug("GenAI taskType defaulted to: %s", taskType)
	}

	if dimensions <= 0 {
		dimensions = defaultGenAIDimensions
		log.Debug("GenAI dimensions defaulted to: %d", dimensions)
	}

	log.Info("initializing GenAI client: model=%s, task_type=%s, dimensions=%d", model, taskType, dimensions)

	ctx := context.Background()
	clientStart := time.Now()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	clientLatency := time.Since(clientStart)

	if err != nil {
		log.Error("failed to create GenAI client after %v: %v", clientLatency, err)
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	log.Info("GenAI client created successfully in %v", clientLatency)

	return &GenAIEngine{
		client:     client,
		model:      model,
		taskType:   taskType,
		dimensions: dimensions,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "GenAI.Embed")
	log := logging.Get(logging.CategoryEmbedding)

	log.Debug("GenAI.Embed: starting embed request, text_length=%d chars, model=%s", len(text), e.model)

	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	apiStart := time.Now()
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			OutputDimensionality: int32Ptr(int32(e.dimensions)),
		},
	)
	apiLatency := time.Since(apiStart)

	if err != nil {
		log.Error("GenAI.Embed: API call failed after %v: %v", apiLatency, err)
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}

	if len(result.Embeddings) == 0 {
		log.Error("GenAI.Embed: no embeddings returned from API")
		return nil, fmt.Errorf("no embeddings returned")
	}

	dimensions := len(result.Embeddings[0].Values)
	timer.Stop()
	log.Info("GenAI.Embed: completed, dimensions=%d, api_latency=%v", dimensions, apiLatency)

	return result.Embeddings[0].Values, nil
}

// EmbedBatch generates embeddings for multiple texts. GenAI has native batch
// support but limits batches to 100 items; larger inputs are chunked and
// processed sequentially.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "GenAI.EmbedBatch")
	defer timer.Stop()
	log := logging.Get(logging.CategoryEmbedding)

	log.Info("GenAI.EmbedBatch: starting batch embed for %d texts", len(texts))

	if len(texts) == 0 {
		return nil, nil
	}

	if len(texts) <= maxBatchSize {
		return e.embedBatchChunk(ctx, texts)
	}

	numBatches := (len(texts) + maxBatchSize - 1) / maxBatchSize
	log.Info("GenAI.EmbedBatch: chunking %d texts into %d batches of up to %d items", len(texts), numBatches, maxBatchSize)

	allEmbeddings := make([][]float32, 0, len(texts))

	for batchIdx := 0; batchIdx < numBatches; batchIdx++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := batchIdx * maxBatchSize
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		chunk := texts[start:end]
		log.Debug("GenAI.EmbedBatch: processing batch %d/%d with %d texts (indices %d-%d)",
			batchIdx+1, numBatches, len(chunk), start, end-1)

		chunkEmbeddings, err := e.embedBatchChunk(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d failed: %w", batchIdx+1, numBatches, err)
		}

		allEmbeddings = append(allEmbeddings, chunkEmbeddings...)
	}

	log.Info("GenAI.EmbedBatch: completed, processed %d texts in %d batches", len(texts), numBatches)

	return allEmbeddings, nil
}

// embedBatchChunk processes a single batch chunk (must be <= maxBatchSize).
func (e *GenAIEngine) embedBatchChunk(ctx context.Context, texts []string) ([][]float32, error) {
	log := logging.Get(logging.CategoryEmbedding)

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	apiStart := time.Now()
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			OutputDimensionality: int32Ptr(int32(e.dimensions)),
		},
	)
	apiLatency := time.Since(apiStart)

	if err != nil {
		log.Error("GenAI.embedBatchChunk: API call failed after %v: %v", apiLatency, err)
		return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
	}

	log.Debug("GenAI.embedBatchChunk: API response received in %v, got %d embeddings", apiLatency, len(result.Embeddings))

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}

	return embeddings, nil
}

// Dimensions returns the configured output dimensionality requested from
// the provider (defaultGenAIDimensions unless topic_similarity.dimensions
// overrides it).
func (e *GenAIEngine) Dimensions() int {
	return e.dimensions
}

// Name returns the engine name, recorded as model_version in the cache.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}

// Close is a no-op for the GenAI client (no cleanup needed).
func (e *GenAIEngine) Close() error {
	return nil
}
