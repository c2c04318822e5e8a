package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionResetter"),
	)
}

// fakeEngine returns a deterministic vector per input so tests never touch
// the network; it also counts calls so batching behavior can be asserted.
type fakeEngine struct {
	calls int
	name  string
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 2}
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return 3 }
func (f *fakeEngine) Name() string {
	if f.name != "" {
		return f.name
	}
	return "fake:v1"
}

func TestCacheMissesThenHits(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	cache, err := NewCache(filepath.Join(dir, "embeddings.db"), engine)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	keys := []string{"alpha", "beta", "gamma"}

	first, err := cache.GetEmbeddings(ctx, keys, 10)
	if err != nil {
		t.Fatalf("GetEmbeddings: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(first))
	}
	if engine.calls != 1 {
		t.Fatalf("expected 1 engine call for a single batch, got %d", engine.calls)
	}

	second, err := cache.GetEmbeddings(ctx, keys, 10)
	if err != nil {
		t.Fatalf("GetEmbeddings (cached): %v", err)
	}
	if engine.calls != 1 {
		t.Fatalf("expected no additional engine calls on cache hit, got %d total", engine.calls)
	}
	for _, k := range keys {
		if len(second[k]) != len(first[k]) {
			t.Errorf("key %q: cached vector differs in length from original", k)
		}
	}
}

func TestCacheRespectsBatchSize(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	cache, err := NewCache(filepath.Join(dir, "embeddings.db"), engine)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer cache.Close()

	keys := make([]string, 25)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	if _, err := cache.GetEmbeddings(context.Background(), keys, 10); err != nil {
		t.Fatalf("GetEmbeddings: %v", err)
	}
	if engine.calls != 3 {
		t.Fatalf("expected 3 batches for 25 keys at batch size 10, got %d", engine.calls)
	}
}

func TestCacheInvalidatesOnModelVersionChange(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "embeddings.db")

	engineV1 := &fakeEngine{name: "fake:v1"}
	cache1, err := NewCache(dbPath, engineV1)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, err := cache1.GetEmbeddings(context.Background(), []string{"tag"}, 10); err != nil {
		t.Fatalf("GetEmbeddings: %v", err)
	}
	cache1.Close()

	engineV2 := &fakeEngine{name: "fake:v2"}
	cache2, err := NewCache(dbPath, engineV2)
	if err != nil {
		t.Fatalf("NewCache (reopen): %v", err)
	}
	defer cache2.Close()

	if _, err := cache2.GetEmbeddings(context.Background(), []string{"tag"}, 10); err != nil {
		t.Fatalf("GetEmbeddings: %v", err)
	}
	if engineV2.calls != 1 {
		t.Fatalf("expected model_version change to force a recompute, got %d calls", engineV2.calls)
	}
}

func TestNoopEngineFails(t *testing.T) {
	var e Engine = NoopEngine{}
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected NoopEngine.Embed to return an error")
	}
	if e.Dimensions() != 0 {
		t.Fatalf("expected NoopEngine.Dimensions() == 0, got %d", e.Dimensions())
	}
}
