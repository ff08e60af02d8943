package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"docrag/internal/adapter/embedding"
	"docrag/internal/domain"
)

func buildCorpus(t *testing.T, f *fixture) {
	t.Helper()
	for i, text := range corpus {
		f.addDoc(t, fmt.Sprintf("doc%d.txt", i), text)
	}
	if _, err := f.build.Build(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}

func TestRetrieve_SelfMatch(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{TopK: 3, TokenBudget: 1000})
	buildCorpus(t, f)

	out, err := f.retrieve.Retrieve(context.Background(), corpus[2], 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 3 {
		t.Fatalf("expected default top_k of 3, got %d", len(out.Results))
	}
	top := out.Results[0]
	if top.Filename != "doc2.txt" || top.Content != corpus[2] || top.Ordinal != 0 {
		t.Errorf("expected exact chunk first, got %+v", top)
	}
	if math.Abs(top.Score-1.0) > 1e-5 {
		t.Errorf("expected self-match score ~1.0, got %v", top.Score)
	}
	if out.Model != "mock-embed" || out.QueryID == "" {
		t.Errorf("unexpected outcome metadata: %+v", out)
	}
}

func TestRetrieve_RecordsQueryAndCitations(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{TopK: 2, TokenBudget: 1000})
	buildCorpus(t, f)

	out, err := f.retrieve.Retrieve(context.Background(), corpus[3], 2)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := f.store.GetQuery(out.QueryID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Question != corpus[3] || rec.Model != "mock-embed" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !strings.HasPrefix(rec.Artifacts[ContextArtifact], "[1] doc3.txt#0") {
		t.Errorf("expected packed context artifact, got %q", rec.Artifacts[ContextArtifact])
	}

	cites, _ := f.store.ListCitations(out.QueryID)
	if len(cites) != len(out.Results) {
		t.Fatalf("expected %d citations, got %d", len(out.Results), len(cites))
	}
	for i, c := range cites {
		if c.ChunkID != out.Results[i].ChunkID || c.Score != out.Results[i].Score {
			t.Errorf("citation %d does not match result: %+v vs %+v", i, c, out.Results[i])
		}
	}
	if len(out.Context.Snippets) != len(out.Results) {
		t.Errorf("expected every result packed, got %d snippets", len(out.Context.Snippets))
	}
}

func TestRetrieve_NoIndex(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{})

	_, err := f.retrieve.Retrieve(context.Background(), "anything", 3)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("expected cause ErrIndexNotFound to be preserved, got %v", err)
	}
	if f.embedder.Calls() != 0 {
		t.Error("question should not be embedded without an index")
	}
}

func TestRetrieve_ModelMismatch(t *testing.T) {
	tests := []struct {
		name    string
		allow   bool
		wantErr bool
	}{
		{"fails by default", false, true},
		{"warns when allowed", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, defaultBuildOptions(), RetrieveOptions{AllowModelMismatch: tt.allow})
			buildCorpus(t, f)
			f.embedder.ReportModel = "other-model"

			out, err := f.retrieve.Retrieve(context.Background(), corpus[0], 1)
			if tt.wantErr {
				var mismatch *domain.ModelMismatchError
				if !errors.As(err, &mismatch) {
					t.Fatalf("expected ModelMismatchError, got %v", err)
				}
				if mismatch.IndexModel != "mock-embed" || mismatch.QueryModel != "other-model" {
					t.Errorf("unexpected mismatch detail: %+v", mismatch)
				}
				if stats, _ := f.store.GetStats(); stats.TotalQueries != 0 {
					t.Error("failed retrieval must not be recorded")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Model != "other-model" {
				t.Errorf("expected query model recorded, got %s", out.Model)
			}
		})
	}
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{AllowModelMismatch: true})
	buildCorpus(t, f)

	wide := embedding.NewMockEmbedder(16, "mock-embed")
	r := NewRetrieveUseCase(f.store, wide, f.index, f.cache, NewPackUseCase(nil), RetrieveOptions{})
	_, err := r.Retrieve(context.Background(), "q", 1)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRetrieve_SkipsDeletedChunks(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{})
	buildCorpus(t, f)

	before, err := f.retrieve.Retrieve(context.Background(), corpus[4], 5)
	if err != nil {
		t.Fatal(err)
	}
	gone := before.Results[0].ChunkID
	f.store.DeleteChunk(gone)

	after, err := f.retrieve.Retrieve(context.Background(), corpus[4], 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Results) != 4 {
		t.Fatalf("expected 4 results after deleting one chunk, got %d", len(after.Results))
	}
	for _, r := range after.Results {
		if r.ChunkID == gone {
			t.Errorf("deleted chunk %d returned", gone)
		}
	}
}

func TestRetrieve_RecordFailure(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{})
	buildCorpus(t, f)
	f.store.RecordErr = errors.New("store unavailable")

	if _, err := f.retrieve.Retrieve(context.Background(), corpus[0], 2); err == nil {
		t.Fatal("expected record failure to surface")
	}
	if stats, _ := f.store.GetStats(); stats.TotalQueries != 0 {
		t.Errorf("expected nothing recorded, got %d queries", stats.TotalQueries)
	}
}

func TestRetrieve_CacheFollowsGeneration(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{})
	buildCorpus(t, f)

	if _, err := f.retrieve.Retrieve(context.Background(), corpus[0], 1); err != nil {
		t.Fatal(err)
	}
	gen, _ := f.index.Generation()
	if _, _, ok := f.cache.Get(gen); !ok {
		t.Fatal("expected loaded index to be cached")
	}

	f.addDoc(t, "extra.txt", "lunar eclipses happen at full moon")
	if _, err := f.build.Build(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := f.cache.Get(gen); ok {
		t.Error("build should invalidate the cached index")
	}

	out, err := f.retrieve.Retrieve(context.Background(), "lunar eclipses happen at full moon", 1)
	if err != nil {
		t.Fatal(err)
	}
	if out.Results[0].Filename != "extra.txt" {
		t.Errorf("expected new generation to be served, got %s", out.Results[0].Filename)
	}
}
