package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"docrag/config"
)

func newFakeOpenAI(t *testing.T, model string, reverse bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Object: "embedding", Embedding: []float32{float32(i), 1}, Index: i}
		}
		if reverse {
			for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
				data[i], data[j] = data[j], data[i]
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	srv := newFakeOpenAI(t, "served-model", true)
	defer srv.Close()

	e, err := NewOpenAICompatibleEmbedder("DOCRAG_TEST_UNSET_KEY", "text-embedding-3-small", srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(got.Vectors))
	}
	for i, v := range got.Vectors {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
	if got.Model != "served-model" {
		t.Errorf("expected reported model, got %q", got.Model)
	}
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom","type":"server_error"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, _ := NewOpenAICompatibleEmbedder("DOCRAG_TEST_UNSET_KEY", "m", srv.URL)
	if _, err := e.Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("expected error from failing server")
	}
}

func TestOpenAIEmbedder_RequiresKeyWithoutBaseURL(t *testing.T) {
	t.Setenv("DOCRAG_TEST_EMPTY_KEY", "")
	if _, err := NewOpenAIEmbedder("DOCRAG_TEST_EMPTY_KEY", "m"); err == nil {
		t.Error("expected missing key error")
	}
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(32, "mock-embed")
	ctx := context.Background()

	a, _ := e.Embed(ctx, []string{"the quick brown fox"})
	b, _ := e.Embed(ctx, []string{"the quick brown fox"})
	for i := range a.Vectors[0] {
		if a.Vectors[0][i] != b.Vectors[0][i] {
			t.Fatal("mock embeddings should be deterministic")
		}
	}
	if a.Model != "mock-embed" || len(a.Vectors[0]) != 32 {
		t.Errorf("unexpected embeddings: model=%s dim=%d", a.Model, len(a.Vectors[0]))
	}

	e.FailOnCall = 3
	if _, err := e.Embed(ctx, []string{"x"}); !errors.Is(err, ErrMockFailure) {
		t.Errorf("expected injected failure, got %v", err)
	}
	if e.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", e.Calls())
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"mock", false},
		{"ollama", false},
		{"unknown", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.DefaultConfig().Embedding
			cfg.Provider = tt.provider
			e, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%s) error = %v, wantErr %v", tt.provider, err, tt.wantErr)
			}
			if err == nil && e.ModelName() != cfg.Model {
				t.Errorf("expected model %s, got %s", cfg.Model, e.ModelName())
			}
		})
	}
}
