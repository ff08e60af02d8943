package port

import (
	"docrag/internal/adapter/vectorindex"
	"docrag/internal/domain"
)

// IndexStore persists a vector index together with its slot-to-chunk
// mapping and the embedding model that produced it.
type IndexStore interface {
	Persist(idx *vectorindex.Flat, mapping []uint64, model string) (Location, error)

	Load() (*vectorindex.Flat, domain.IndexMetadata, error)

	Describe() (domain.IndexMetadata, error)

	// Generation names the currently published index, or returns
	// domain.ErrIndexNotFound.
	Generation() (string, error)
}

type Location struct {
	Dir        string
	IndexPath  string
	MetaPath   string
	Generation string
}
