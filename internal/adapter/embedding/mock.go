package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"docrag/internal/adapter/analyzer"
	"docrag/internal/port"
)

// MockEmbedder hashes content words into a fixed number of buckets, so
// texts sharing words score higher than unrelated ones. It needs no network.
type MockEmbedder struct {
	dimension int
	model     string
	tokenizer *analyzer.Tokenizer

	mu    sync.Mutex
	calls int

	// FailOnCall makes the n-th Embed call (1-based) return an error.
	FailOnCall int
	// ShortBy drops that many vectors from every response.
	ShortBy int
	// ReportModel overrides the model reported in responses.
	ReportModel string
}

var ErrMockFailure = errors.New("mock embedder failure")

func NewMockEmbedder(dimension int, model string) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	if model == "" {
		model = "mock"
	}
	return &MockEmbedder{dimension: dimension, model: model, tokenizer: analyzer.NewTokenizer()}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string) (port.Embeddings, error) {
	if err := ctx.Err(); err != nil {
		return port.Embeddings{}, err
	}

	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()

	if e.FailOnCall > 0 && call == e.FailOnCall {
		return port.Embeddings{}, ErrMockFailure
	}

	n := len(texts) - e.ShortBy
	if n < 0 {
		n = 0
	}
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		vectors[i] = e.vector(texts[i])
	}

	model := e.model
	if e.ReportModel != "" {
		model = e.ReportModel
	}
	return port.Embeddings{Vectors: vectors, Model: model}, nil
}

func (e *MockEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dimension)
	words := e.tokenizer.Tokenize(text)
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dimension)]++
	}
	if len(words) == 0 {
		v[0] = 1
	}
	return v
}

// Calls returns how many times Embed has been called.
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return e.model
}
