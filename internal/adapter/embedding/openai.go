package embedding

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"docrag/config"
	"docrag/internal/port"
)

const maxBatch = 100

// OpenAIEmbedder talks to the OpenAI embeddings endpoint or any
// OpenAI-compatible server (Ollama, vLLM) reachable at a custom base URL.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(apiKeyEnv, model string) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, "")
}

func NewOllamaEmbedder(model, baseURL string) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = baseURL
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// NewOpenAICompatibleEmbedder reads the API key from apiKeyEnv. An empty
// baseURL means the public OpenAI endpoint, which requires a key.
func NewOpenAICompatibleEmbedder(apiKeyEnv, model, baseURL string) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) (port.Embeddings, error) {
	out := port.Embeddings{Model: e.model}
	if len(texts) == 0 {
		return out, nil
	}

	for i := 0; i < len(texts); i += maxBatch {
		end := i + maxBatch
		if end > len(texts) {
			end = len(texts)
		}

		vectors, model, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return port.Embeddings{}, err
		}
		if model != "" {
			out.Model = model
		}
		out.Vectors = append(out.Vectors, vectors...)
	}

	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, string, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, "", fmt.Errorf("embedding request failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, "", fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, "", fmt.Errorf("embedding provider returned out-of-range index %d", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, "", fmt.Errorf("embedding provider returned no vector for input %d", i)
		}
	}

	return vectors, string(resp.Model), nil
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// New builds the embedder selected by the configuration.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAICompatibleEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL)
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL)
	case "mock":
		return NewMockEmbedder(cfg.Dimension, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
