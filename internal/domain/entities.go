package domain

import "time"

type Document struct {
	ID        uint64
	Filename  string
	Filetype  string
	Path      string
	Text      string
	CreatedAt time.Time
}

// HasText reports whether the document carries extracted text to chunk.
func (d Document) HasText() bool {
	return d.Text != ""
}

type Chunk struct {
	ID      uint64
	DocID   uint64
	Ordinal int
	Text    string
}

// ChunkText binds a persisted chunk id to the text submitted for embedding.
// Slot i of a built index corresponds to the i-th ChunkText of the build.
type ChunkText struct {
	ChunkID uint64
	Text    string
}

// ChunkView is a chunk joined with its parent document.
type ChunkView struct {
	Chunk    Chunk
	Filename string
}

type RetrievalResult struct {
	ChunkID  uint64  `json:"chunk_id"`
	DocID    uint64  `json:"doc_id"`
	Ordinal  int     `json:"ordinal"`
	Filename string  `json:"filename"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

type Citation struct {
	QueryID  string  `json:"query_id"`
	ChunkID  uint64  `json:"chunk_id"`
	Score    float64 `json:"score"`
	Filename string  `json:"filename,omitempty"`
}

type QueryRecord struct {
	ID        string            `json:"id"`
	Question  string            `json:"question"`
	Model     string            `json:"model"`
	Answer    string            `json:"answer"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type IndexMetadata struct {
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	VectorCount    int       `json:"vector_count"`
	Mapping        []uint64  `json:"id_to_chunk_id"`
	BuiltAt        time.Time `json:"built_at"`
	Generation     string    `json:"-"`
	SizeBytes      int64     `json:"-"`
}

type PackedContext struct {
	Query        string    `json:"query"`
	BudgetTokens int       `json:"budget_tokens"`
	UsedTokens   int       `json:"used_tokens"`
	Snippets     []Snippet `json:"snippets"`
}

type Snippet struct {
	Marker   string  `json:"marker"`
	Filename string  `json:"filename"`
	ChunkID  uint64  `json:"chunk_id"`
	Ordinal  int     `json:"ordinal"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

type Stats struct {
	TotalDocs    int `json:"total_docs"`
	TotalChunks  int `json:"total_chunks"`
	TotalQueries int `json:"total_queries"`
}
