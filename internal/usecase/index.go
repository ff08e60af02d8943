package usecase

import (
	"context"
	"fmt"
	"sync"

	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/vectorindex"
	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

// BuildOptions holds the chunking and embedding settings of a build.
type BuildOptions struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

// BuildProgress is called after each embedded batch with the number of
// chunks embedded so far and the total.
type BuildProgress func(done, total int)

// BuildIndexUseCase chunks every document with text, embeds the chunks and
// publishes a new index generation.
type BuildIndexUseCase struct {
	mu         sync.Mutex
	store      port.ChunkStore
	embedder   port.Embedder
	indexStore port.IndexStore
	cache      *cache.IndexCache
	opts       BuildOptions
}

func NewBuildIndexUseCase(
	store port.ChunkStore,
	embedder port.Embedder,
	indexStore port.IndexStore,
	indexCache *cache.IndexCache,
	opts BuildOptions,
) *BuildIndexUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	return &BuildIndexUseCase{
		store:      store,
		embedder:   embedder,
		indexStore: indexStore,
		cache:      indexCache,
		opts:       opts,
	}
}

// BuildResult describes a published index.
type BuildResult struct {
	Documents int
	Chunks    int
	Model     string
	Dimension int
	Location  port.Location
}

// Build rebuilds the index from all documents. On any error the previously
// published index and its chunk rows stay in place.
func (u *BuildIndexUseCase) Build(ctx context.Context, progress BuildProgress) (*BuildResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	windows, err := chunker.NewWindowChunker(u.opts.ChunkSize, u.opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	docs, err := u.store.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var (
		pairs      []domain.ChunkText
		superseded []uint64
		created    []uint64
		documents  int
	)
	published := false
	defer func() {
		if published || len(created) == 0 {
			return
		}
		if err := u.store.DeleteChunks(created); err != nil {
			logger.Warn("failed to remove chunks of aborted build: %v", err)
		}
	}()

	for _, doc := range docs {
		if !doc.HasText() {
			logger.Debug("skipping document %d (%s): no extracted text", doc.ID, doc.Filename)
			continue
		}

		chunks, err := windows.Chunk(doc)
		if err != nil {
			return nil, err
		}
		if len(chunks) == 0 {
			continue
		}

		previous, err := u.store.DocumentChunkIDs(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list chunks of document %d: %w", doc.ID, err)
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		ids, err := u.store.CreateDocumentChunks(doc.ID, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to store chunks of document %d: %w", doc.ID, err)
		}
		created = append(created, ids...)
		if len(ids) != len(texts) {
			return nil, fmt.Errorf("chunk store returned %d ids for %d chunks of document %d", len(ids), len(texts), doc.ID)
		}

		for i, id := range ids {
			pairs = append(pairs, domain.ChunkText{ChunkID: id, Text: texts[i]})
		}
		superseded = append(superseded, previous...)
		documents++
	}

	if len(pairs) == 0 {
		return nil, domain.ErrNoChunksAvailable
	}

	vectors, model, err := u.embed(ctx, pairs, progress)
	if err != nil {
		return nil, err
	}

	idx, err := vectorindex.Build(vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mapping := make([]uint64, len(pairs))
	for i, p := range pairs {
		mapping[i] = p.ChunkID
	}

	loc, err := u.indexStore.Persist(idx, mapping, model)
	if err != nil {
		return nil, fmt.Errorf("failed to persist index: %w", err)
	}
	published = true

	if u.cache != nil {
		u.cache.Invalidate()
	}

	if err := u.store.DeleteChunks(superseded); err != nil {
		logger.Warn("index published but superseded chunks were not removed: %v", err)
	}

	logger.Info("published index generation %s: %d chunks from %d documents (%s, dim %d)",
		loc.Generation, len(pairs), documents, model, idx.Dimension())

	return &BuildResult{
		Documents: documents,
		Chunks:    len(pairs),
		Model:     model,
		Dimension: idx.Dimension(),
		Location:  loc,
	}, nil
}

// embed sends the pair texts in batches and returns one vector per pair,
// in pair order, plus the model every batch reported.
func (u *BuildIndexUseCase) embed(ctx context.Context, pairs []domain.ChunkText, progress BuildProgress) ([][]float32, string, error) {
	vectors := make([][]float32, 0, len(pairs))
	model := ""

	for start := 0; start < len(pairs); start += u.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		end := start + u.opts.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		texts := make([]string, 0, end-start)
		for _, p := range pairs[start:end] {
			texts = append(texts, p.Text)
		}

		emb, err := u.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, "", fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(emb.Vectors) != len(texts) {
			return nil, "", fmt.Errorf("embedding provider returned %d vectors for %d chunks", len(emb.Vectors), len(texts))
		}

		batchModel := emb.Model
		if batchModel == "" {
			batchModel = u.embedder.ModelName()
		}
		if model == "" {
			model = batchModel
		} else if batchModel != model {
			return nil, "", fmt.Errorf("embedding model changed during build: %q then %q", model, batchModel)
		}

		vectors = append(vectors, emb.Vectors...)
		if progress != nil {
			progress(len(vectors), len(pairs))
		}
	}

	return vectors, model, nil
}
