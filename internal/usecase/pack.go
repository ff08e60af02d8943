package usecase

import (
	"fmt"
	"strings"

	"docrag/internal/domain"
	"docrag/internal/port"
)

// PackUseCase packs retrieval results into a prompt context under a token
// budget, labelling each snippet with a citation marker.
type PackUseCase struct {
	tokenizer port.Tokenizer
}

func NewPackUseCase(tokenizer port.Tokenizer) *PackUseCase {
	return &PackUseCase{tokenizer: tokenizer}
}

// Pack walks results in rank order and keeps every result that still fits
// the budget. Markers are numbered in the order snippets are kept. A
// non-positive budget keeps everything.
func (u *PackUseCase) Pack(query string, results []domain.RetrievalResult, budget int) domain.PackedContext {
	packed := domain.PackedContext{
		Query:        query,
		BudgetTokens: budget,
		Snippets:     []domain.Snippet{},
	}

	for _, r := range results {
		tokens := u.tokenizer.CountTokens(r.Content)
		if tokens == 0 {
			tokens = 1
		}
		if budget > 0 && packed.UsedTokens+tokens > budget {
			continue
		}

		packed.Snippets = append(packed.Snippets, domain.Snippet{
			Marker:   fmt.Sprintf("[%d]", len(packed.Snippets)+1),
			Filename: r.Filename,
			ChunkID:  r.ChunkID,
			Ordinal:  r.Ordinal,
			Score:    r.Score,
			Text:     r.Content,
		})
		packed.UsedTokens += tokens
	}

	return packed
}

// RenderContext formats a packed context as prompt text.
func RenderContext(packed domain.PackedContext) string {
	var b strings.Builder
	for i, s := range packed.Snippets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s %s#%d (score %.3f)\n%s", s.Marker, s.Filename, s.Ordinal, s.Score, s.Text)
	}
	return b.String()
}

var _ port.Packer = (*PackUseCase)(nil)
