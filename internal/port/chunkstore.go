package port

import "docrag/internal/domain"

// ChunkStore is the persistence collaborator for documents, chunks,
// queries and citations.
type ChunkStore interface {
	PutDocument(doc domain.Document) (uint64, error)

	GetDocument(id uint64) (domain.Document, error)

	ListDocuments() ([]domain.Document, error)

	// CreateDocumentChunks stores the ordered chunk texts of a document and
	// returns their ids in the same order.
	CreateDocumentChunks(docID uint64, texts []string) ([]uint64, error)

	// DocumentChunkIDs returns the document's current chunk ids in creation order.
	DocumentChunkIDs(docID uint64) ([]uint64, error)

	// DeleteChunks removes chunks by id. Unknown ids are ignored.
	DeleteChunks(ids []uint64) error

	// GetChunkByID returns false when the chunk no longer exists.
	GetChunkByID(id uint64) (domain.ChunkView, bool, error)

	RecordQuery(rec domain.QueryRecord) (string, error)

	RecordCitations(queryID string, citations []domain.Citation) error

	// RecordQueryWithCitations persists a query and its citations atomically.
	RecordQueryWithCitations(rec domain.QueryRecord, citations []domain.Citation) (string, error)

	GetQuery(id string) (domain.QueryRecord, error)

	ListQueries(limit int) ([]domain.QueryRecord, error)

	ListCitations(queryID string) ([]domain.Citation, error)

	GetStats() (domain.Stats, error)

	Close() error
}
