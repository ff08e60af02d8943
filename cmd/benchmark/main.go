package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"docrag/config"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/indexstore"
	"docrag/internal/adapter/store"
)

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", ".", "project directory holding .docrag")
	query := flag.String("q", "", "query to test")
	topK := flag.Int("k", 10, "number of results")
	rounds := flag.Int("rounds", 50, "search repetitions for latency")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./project -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Index load time and size")
		fmt.Println("  2. Exact search latency over repeated rounds")
		fmt.Println("  3. Similarity of the top matches to the query")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewBoltStore(config.StoreDBPath(*dir), cfg.LockTimeout())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder not available: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))

	loadStart := time.Now()
	idx, meta, err := indexstore.NewFileStore(config.IndexDir(*dir), cfg.Store.KeepGenerations).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading index: %v\n", err)
		os.Exit(1)
	}
	loadTime := time.Since(loadStart)

	fmt.Printf("Generation: %s\n", meta.Generation)
	fmt.Printf("Vectors:    %d x %d (%s)\n", idx.Len(), idx.Dimension(), meta.EmbeddingModel)
	fmt.Printf("Size:       %d bytes, loaded in %s\n", meta.SizeBytes, loadTime)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	emb, err := embedder.Embed(context.Background(), []string{*query})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}
	if emb.Model != meta.EmbeddingModel {
		fmt.Printf("WARNING: query model %q differs from index model %q\n", emb.Model, meta.EmbeddingModel)
	}

	searchStart := time.Now()
	hits, err := idx.Search(emb.Vectors[0], *topK)
	for i := 1; i < *rounds && err == nil; i++ {
		_, err = idx.Search(emb.Vectors[0], *topK)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	perSearch := time.Since(searchStart) / time.Duration(max(*rounds, 1))

	if len(hits) == 0 {
		fmt.Println("Index is empty.")
		return
	}

	fmt.Printf("Top %d matches:\n\n", len(hits))

	totalScore := 0.0
	for i, h := range hits {
		view, ok, _ := st.GetChunkByID(meta.Mapping[h.Slot])
		if !ok {
			fmt.Printf("%d. [%.3f] (chunk %d no longer stored)\n\n", i+1, h.Score, meta.Mapping[h.Slot])
			totalScore += h.Score
			continue
		}

		preview := []rune(strings.ReplaceAll(view.Chunk.Text, "\n", " "))
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}

		totalScore += h.Score

		rating := "LOW"
		if h.Score > 0.7 {
			rating = "HIGH"
		} else if h.Score > 0.5 {
			rating = "GOOD"
		} else if h.Score > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s#%d\n", i+1, rating, h.Score, view.Filename, view.Chunk.Ordinal)
		fmt.Printf("   %s\n\n", string(preview))
	}

	avgScore := totalScore / float64(len(hits))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("METRICS:\n")
	fmt.Printf("  Search latency:     %s per query (%d rounds)\n", perSearch, *rounds)
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", hits[0].Score)
	fmt.Printf("  Score spread:       %.3f\n", hits[0].Score-hits[len(hits)-1].Score)

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - matches are closely related")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - check the embedding model or rebuild the index")
	}
}
