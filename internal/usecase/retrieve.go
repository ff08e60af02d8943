package usecase

import (
	"context"
	"fmt"

	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/vectorindex"
	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

// ContextArtifact is the query record artifact holding the packed context.
const ContextArtifact = "context"

type RetrieveOptions struct {
	TopK               int
	AllowModelMismatch bool
	TokenBudget        int
}

// RetrieveUseCase answers a question with the most similar chunks of the
// published index and records the query with its citations.
type RetrieveUseCase struct {
	store      port.ChunkStore
	embedder   port.Embedder
	indexStore port.IndexStore
	cache      *cache.IndexCache
	packer     port.Packer
	opts       RetrieveOptions
}

func NewRetrieveUseCase(
	store port.ChunkStore,
	embedder port.Embedder,
	indexStore port.IndexStore,
	indexCache *cache.IndexCache,
	packer port.Packer,
	opts RetrieveOptions,
) *RetrieveUseCase {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &RetrieveUseCase{
		store:      store,
		embedder:   embedder,
		indexStore: indexStore,
		cache:      indexCache,
		packer:     packer,
		opts:       opts,
	}
}

// RetrievalOutcome is the result of one recorded retrieval.
type RetrievalOutcome struct {
	QueryID string                   `json:"query_id"`
	Model   string                   `json:"model"`
	Results []domain.RetrievalResult `json:"results"`
	Context domain.PackedContext     `json:"context"`
}

// Retrieve returns up to k results, highest score first. A non-positive k
// uses the configured default. Fewer than k results come back when the
// index is smaller than k or mapped chunks no longer exist.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, question string, k int) (*RetrievalOutcome, error) {
	if k <= 0 {
		k = u.opts.TopK
	}

	idx, meta, err := u.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}

	emb, err := u.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(emb.Vectors) != 1 {
		return nil, fmt.Errorf("embedding provider returned %d vectors for 1 question", len(emb.Vectors))
	}
	model := emb.Model
	if model == "" {
		model = u.embedder.ModelName()
	}

	if meta.EmbeddingModel != "" && model != meta.EmbeddingModel {
		mismatch := &domain.ModelMismatchError{IndexModel: meta.EmbeddingModel, QueryModel: model}
		if !u.opts.AllowModelMismatch {
			return nil, mismatch
		}
		logger.Warn("%v; continuing because allow_model_mismatch is set", mismatch)
	}

	hits, err := idx.Search(emb.Vectors[0], k)
	if err != nil {
		return nil, err
	}

	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		chunkID := meta.Mapping[hit.Slot]
		view, ok, err := u.store.GetChunkByID(chunkID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve chunk %d: %w", chunkID, err)
		}
		if !ok {
			logger.Debug("skipping slot %d: chunk %d no longer exists", hit.Slot, chunkID)
			continue
		}
		results = append(results, domain.RetrievalResult{
			ChunkID:  chunkID,
			DocID:    view.Chunk.DocID,
			Ordinal:  view.Chunk.Ordinal,
			Filename: view.Filename,
			Content:  view.Chunk.Text,
			Score:    hit.Score,
		})
	}

	packed := u.packer.Pack(question, results, u.opts.TokenBudget)

	citations := make([]domain.Citation, len(results))
	for i, r := range results {
		citations[i] = domain.Citation{ChunkID: r.ChunkID, Score: r.Score}
	}
	rec := domain.QueryRecord{
		Question:  question,
		Model:     model,
		Artifacts: map[string]string{ContextArtifact: RenderContext(packed)},
	}
	queryID, err := u.store.RecordQueryWithCitations(rec, citations)
	if err != nil {
		return nil, fmt.Errorf("failed to record query: %w", err)
	}

	return &RetrievalOutcome{
		QueryID: queryID,
		Model:   model,
		Results: results,
		Context: packed,
	}, nil
}

// loadIndex serves the published generation from the cache when possible.
func (u *RetrieveUseCase) loadIndex() (*vectorindex.Flat, domain.IndexMetadata, error) {
	gen, err := u.indexStore.Generation()
	if err != nil {
		return nil, domain.IndexMetadata{}, err
	}

	if u.cache != nil {
		if idx, meta, ok := u.cache.Get(gen); ok {
			return idx, meta, nil
		}
	}

	idx, meta, err := u.indexStore.Load()
	if err != nil {
		return nil, domain.IndexMetadata{}, err
	}
	if len(meta.Mapping) != idx.Len() {
		return nil, domain.IndexMetadata{}, &domain.CorruptIndexError{
			Reason: fmt.Sprintf("mapping has %d entries for %d vectors", len(meta.Mapping), idx.Len()),
		}
	}

	if u.cache != nil {
		u.cache.Put(idx, meta)
	}
	return idx, meta, nil
}
