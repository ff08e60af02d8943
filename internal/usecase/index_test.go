package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docrag/internal/adapter/analyzer"
	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/indexstore"
	"docrag/internal/adapter/memstore"
	"docrag/internal/adapter/vectorindex"
	"docrag/internal/domain"
)

type fixture struct {
	store    *memstore.MemoryStore
	embedder *embedding.MockEmbedder
	index    *indexstore.FileStore
	cache    *cache.IndexCache
	build    *BuildIndexUseCase
	retrieve *RetrieveUseCase
}

func newFixture(t *testing.T, opts BuildOptions, ropts RetrieveOptions) *fixture {
	return newFixtureDim(t, 64, opts, ropts)
}

func newFixtureDim(t *testing.T, dim int, opts BuildOptions, ropts RetrieveOptions) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.NewMemoryStore(),
		embedder: embedding.NewMockEmbedder(dim, "mock-embed"),
		index:    indexstore.NewFileStore(filepath.Join(t.TempDir(), "index"), 2),
		cache:    cache.NewIndexCache(time.Minute),
	}
	f.build = NewBuildIndexUseCase(f.store, f.embedder, f.index, f.cache, opts)
	f.retrieve = NewRetrieveUseCase(f.store, f.embedder, f.index, f.cache, NewPackUseCase(analyzer.NewTokenizer()), ropts)
	return f
}

func defaultBuildOptions() BuildOptions {
	return BuildOptions{ChunkSize: 1200, ChunkOverlap: 150, BatchSize: 2}
}

func (f *fixture) addDoc(t *testing.T, name, text string) uint64 {
	t.Helper()
	id, err := f.store.PutDocument(domain.Document{Filename: name, Filetype: "txt", Text: text})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

var corpus = []string{
	"alpine glaciers retreat under warming summers",
	"sourdough bread needs a lively starter culture",
	"tcp congestion control adapts the sending window",
	"violin strings are tuned in perfect fifths",
	"tidal forces slowly lengthen the earth day",
}

func TestBuild_MappingIntegrity(t *testing.T) {
	f := newFixture(t, BuildOptions{ChunkSize: 30, ChunkOverlap: 5, BatchSize: 3}, RetrieveOptions{})
	for i, text := range corpus {
		f.addDoc(t, fmt.Sprintf("doc%d.txt", i), text)
	}

	res, err := f.build.Build(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	idx, meta, err := f.index.Load()
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks != idx.Len() || len(meta.Mapping) != idx.Len() {
		t.Fatalf("expected %d slots, index has %d, mapping %d", res.Chunks, idx.Len(), len(meta.Mapping))
	}

	ctx := context.Background()
	for slot, chunkID := range meta.Mapping {
		view, ok, err := f.store.GetChunkByID(chunkID)
		if err != nil || !ok {
			t.Fatalf("slot %d: chunk %d missing", slot, chunkID)
		}
		emb, _ := f.embedder.Embed(ctx, []string{view.Chunk.Text})
		want := vectorindex.Normalize(emb.Vectors[0])
		got := idx.Vector(slot)
		for d := range want {
			if math.Abs(float64(want[d]-got[d])) > 1e-6 {
				t.Fatalf("slot %d does not hold the embedding of chunk %d", slot, chunkID)
			}
		}
	}
}

func TestBuild_NoChunksAvailable(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{})
	f.addDoc(t, "scan.pdf", "")
	f.addDoc(t, "blank.txt", "")

	_, err := f.build.Build(context.Background(), nil)
	if !errors.Is(err, domain.ErrNoChunksAvailable) {
		t.Fatalf("expected ErrNoChunksAvailable, got %v", err)
	}
	if _, _, err := f.index.Load(); !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("expected no index persisted, got %v", err)
	}
}

func TestBuild_FiveChunksSearchAll(t *testing.T) {
	f := newFixtureDim(t, 8, defaultBuildOptions(), RetrieveOptions{})
	for i, text := range corpus {
		f.addDoc(t, fmt.Sprintf("doc%d.txt", i), text)
	}

	var calls []int
	res, err := f.build.Build(context.Background(), func(done, total int) {
		calls = append(calls, done)
		if total != 5 {
			t.Errorf("expected total 5, got %d", total)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks != 5 || res.Dimension != 8 || res.Model != "mock-embed" {
		t.Errorf("unexpected build result: %+v", res)
	}
	if len(calls) != 3 || calls[2] != 5 {
		t.Errorf("expected progress after each batch of 2, got %v", calls)
	}

	meta, err := f.index.Describe()
	if err != nil {
		t.Fatal(err)
	}
	if meta.VectorCount != 5 {
		t.Errorf("expected vector_count 5, got %d", meta.VectorCount)
	}

	out, err := f.retrieve.Retrieve(context.Background(), "glaciers in summer", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 5 {
		t.Fatalf("expected all 5 results, got %d", len(out.Results))
	}
	for i := 1; i < len(out.Results); i++ {
		if out.Results[i].Score > out.Results[i-1].Score {
			t.Errorf("results not sorted at %d: %v > %v", i, out.Results[i].Score, out.Results[i-1].Score)
		}
	}
}

func TestBuild_InvalidChunkConfig(t *testing.T) {
	f := newFixture(t, BuildOptions{ChunkSize: 100, ChunkOverlap: 100, BatchSize: 2}, RetrieveOptions{})
	docID := f.addDoc(t, "a.txt", "some text")

	_, err := f.build.Build(context.Background(), nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if ids, _ := f.store.DocumentChunkIDs(docID); len(ids) != 0 {
		t.Errorf("no chunks should be created, got %v", ids)
	}
	if f.embedder.Calls() != 0 {
		t.Errorf("embedder should not be called, got %d calls", f.embedder.Calls())
	}
}

func TestBuild_EmbeddingFailureKeepsPreviousIndex(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{})
	for i, text := range corpus {
		f.addDoc(t, fmt.Sprintf("doc%d.txt", i), text)
	}
	if _, err := f.build.Build(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	genBefore, _ := f.index.Generation()
	statsBefore, _ := f.store.GetStats()

	// first build used 3 calls; fail the second batch of the next build
	f.embedder.FailOnCall = 5
	_, err := f.build.Build(context.Background(), nil)
	if !errors.Is(err, embedding.ErrMockFailure) {
		t.Fatalf("expected embedding failure, got %v", err)
	}

	genAfter, _ := f.index.Generation()
	if genAfter != genBefore {
		t.Errorf("generation changed after failed build: %s -> %s", genBefore, genAfter)
	}
	statsAfter, _ := f.store.GetStats()
	if statsAfter.TotalChunks != statsBefore.TotalChunks {
		t.Errorf("failed build left chunks behind: %d -> %d", statsBefore.TotalChunks, statsAfter.TotalChunks)
	}

	out, err := f.retrieve.Retrieve(context.Background(), corpus[1], 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 || out.Results[0].Filename != "doc1.txt" {
		t.Errorf("previous index should still resolve, got %+v", out.Results)
	}
}

func TestBuild_ShortEmbeddingBatch(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{})
	f.addDoc(t, "a.txt", corpus[0])
	f.embedder.ShortBy = 1

	if _, err := f.build.Build(context.Background(), nil); err == nil {
		t.Fatal("expected error when the provider returns too few vectors")
	}
	if _, err := f.index.Generation(); !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("expected nothing persisted, got %v", err)
	}
}

func TestBuild_CancelledContext(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{})
	f.addDoc(t, "a.txt", corpus[0])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.build.Build(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := f.index.Generation(); !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("cancelled build must persist nothing, got %v", err)
	}
}

func TestBuild_RebuildSupersedesChunks(t *testing.T) {
	f := newFixture(t, BuildOptions{ChunkSize: 20, ChunkOverlap: 4, BatchSize: 4}, RetrieveOptions{})
	docID := f.addDoc(t, "long.txt", strings.Join(corpus, " "))

	first, err := f.build.Build(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	oldIDs, _ := f.store.DocumentChunkIDs(docID)

	second, err := f.build.Build(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.Chunks != first.Chunks {
		t.Errorf("same text should chunk the same: %d vs %d", first.Chunks, second.Chunks)
	}

	stats, _ := f.store.GetStats()
	if stats.TotalChunks != second.Chunks {
		t.Errorf("expected %d live chunks, got %d", second.Chunks, stats.TotalChunks)
	}
	for _, id := range oldIDs {
		if _, ok, _ := f.store.GetChunkByID(id); ok {
			t.Errorf("superseded chunk %d still present", id)
		}
	}

	_, meta, _ := f.index.Load()
	for _, id := range meta.Mapping {
		if _, ok, _ := f.store.GetChunkByID(id); !ok {
			t.Errorf("live mapping references missing chunk %d", id)
		}
	}
}
