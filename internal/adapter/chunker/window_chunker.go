package chunker

import (
	"docrag/internal/domain"
	"docrag/internal/port"
)

var _ port.Chunker = (*WindowChunker)(nil)

// WindowChunker splits document text into fixed-size character windows
// that overlap by a fixed number of characters.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	return &WindowChunker{
		size:    size,
		overlap: overlap,
	}, nil
}

// Chunk returns the document's windows as chunk records with contiguous
// ordinals starting at 0. Ids are assigned later by the chunk store.
func (c *WindowChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	texts, err := Split(doc.Text, c.size, c.overlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			DocID:   doc.ID,
			Ordinal: i,
			Text:    text,
		})
	}
	return chunks, nil
}

// Split cuts text into windows of size characters, each starting overlap
// characters before the end of the previous one. The last window ends at
// the end of the text and may be shorter. Empty text yields no windows.
func Split(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []string
	start := 0
	for start < n {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks, nil
}

// Validate checks the window parameters. overlap must be strictly smaller
// than size, otherwise the window would never advance.
func Validate(size, overlap int) error {
	if size <= 0 {
		return &domain.ConfigError{Field: "chunk_size", Reason: "must be positive"}
	}
	if overlap < 0 {
		return &domain.ConfigError{Field: "chunk_overlap", Reason: "must not be negative"}
	}
	if overlap >= size {
		return &domain.ConfigError{Field: "chunk_overlap", Reason: "must be smaller than chunk_size"}
	}
	return nil
}
