package port

import "docrag/internal/domain"

// Packer defines the interface for packing retrieved chunks into a cited prompt context.
type Packer interface {
	// Pack packs the results into a context that fits the token budget.
	Pack(query string, results []domain.RetrievalResult, budget int) domain.PackedContext
}
