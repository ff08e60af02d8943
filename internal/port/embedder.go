package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns one vector per input text, in input order, and the
	// identifier of the model that produced them.
	Embed(ctx context.Context, texts []string) (Embeddings, error)

	// ModelName returns the name of the configured embedding model.
	ModelName() string
}

// Embeddings is the result of a single Embed call.
type Embeddings struct {
	Vectors [][]float32
	Model   string
}
