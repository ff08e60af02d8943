package memstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"docrag/internal/domain"
	"docrag/internal/port"
)

// MemoryStore is an in-memory ChunkStore. Ids are allocated from
// monotonically increasing counters, like the bbolt store's sequences.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[uint64]domain.Document
	chunks    map[uint64]domain.Chunk
	docChunks map[uint64][]uint64
	queries   map[string]domain.QueryRecord
	order     []string
	citations map[string][]domain.Citation
	nextDoc   uint64
	nextChunk uint64

	// RecordErr, when set, makes query recording fail without side effects.
	RecordErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[uint64]domain.Document),
		chunks:    make(map[uint64]domain.Chunk),
		docChunks: make(map[uint64][]uint64),
		queries:   make(map[string]domain.QueryRecord),
		citations: make(map[string][]domain.Citation),
	}
}

func (s *MemoryStore) PutDocument(doc domain.Document) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == 0 {
		s.nextDoc++
		doc.ID = s.nextDoc
	} else if doc.ID > s.nextDoc {
		s.nextDoc = doc.ID
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	s.docs[doc.ID] = doc
	return doc.ID, nil
}

func (s *MemoryStore) GetDocument(id uint64) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	return doc, nil
}

func (s *MemoryStore) ListDocuments() ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *MemoryStore) CreateDocumentChunks(docID uint64, texts []string) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createChunks(docID, texts)
}

func (s *MemoryStore) createChunks(docID uint64, texts []string) ([]uint64, error) {
	if _, ok := s.docs[docID]; !ok {
		return nil, fmt.Errorf("document %d: %w", docID, domain.ErrNotFound)
	}
	ids := make([]uint64, 0, len(texts))
	for i, text := range texts {
		s.nextChunk++
		id := s.nextChunk
		s.chunks[id] = domain.Chunk{ID: id, DocID: docID, Ordinal: i, Text: text}
		ids = append(ids, id)
	}
	s.docChunks[docID] = append(s.docChunks[docID], ids...)
	return ids, nil
}

func (s *MemoryStore) DocumentChunkIDs(docID uint64) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64(nil), s.docChunks[docID]...), nil
}

func (s *MemoryStore) DeleteChunks(ids []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.deleteChunk(id)
	}
	return nil
}

// DeleteChunk removes a chunk without touching any index built over it.
func (s *MemoryStore) DeleteChunk(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteChunk(id)
}

func (s *MemoryStore) deleteChunk(id uint64) {
	chunk, ok := s.chunks[id]
	if !ok {
		return
	}
	delete(s.chunks, id)
	ids := s.docChunks[chunk.DocID]
	for i, cid := range ids {
		if cid == id {
			s.docChunks[chunk.DocID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

func (s *MemoryStore) GetChunkByID(id uint64) (domain.ChunkView, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return domain.ChunkView{}, false, nil
	}
	return domain.ChunkView{Chunk: chunk, Filename: s.docs[chunk.DocID].Filename}, true, nil
}

func (s *MemoryStore) RecordQuery(rec domain.QueryRecord) (string, error) {
	return s.RecordQueryWithCitations(rec, nil)
}

func (s *MemoryStore) RecordCitations(queryID string, citations []domain.Citation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queries[queryID]; !ok {
		return fmt.Errorf("query %s: %w", queryID, domain.ErrNotFound)
	}
	s.appendCitations(queryID, citations)
	return nil
}

func (s *MemoryStore) RecordQueryWithCitations(rec domain.QueryRecord, citations []domain.Citation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return "", s.RecordErr
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := s.queries[rec.ID]; exists {
		return "", fmt.Errorf("query %s already recorded", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.queries[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	s.appendCitations(rec.ID, citations)
	return rec.ID, nil
}

func (s *MemoryStore) appendCitations(queryID string, citations []domain.Citation) {
	for _, c := range citations {
		c.QueryID = queryID
		c.Filename = ""
		s.citations[queryID] = append(s.citations[queryID], c)
	}
}

func (s *MemoryStore) GetQuery(id string) (domain.QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.queries[id]
	if !ok {
		return domain.QueryRecord{}, fmt.Errorf("query %s: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) ListQueries(limit int) ([]domain.QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []domain.QueryRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(records) >= limit {
			break
		}
		records = append(records, s.queries[s.order[i]])
	}
	return records, nil
}

func (s *MemoryStore) ListCitations(queryID string) ([]domain.Citation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.citations[queryID]
	out := make([]domain.Citation, len(stored))
	for i, c := range stored {
		if chunk, ok := s.chunks[c.ChunkID]; ok {
			c.Filename = s.docs[chunk.DocID].Filename
		}
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *MemoryStore) GetStats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Stats{
		TotalDocs:    len(s.docs),
		TotalChunks:  len(s.chunks),
		TotalQueries: len(s.queries),
	}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ port.ChunkStore = (*MemoryStore)(nil)
