package memstore

import (
	"errors"
	"testing"

	"docrag/internal/domain"
)

func TestMemoryStore_ChunkLifecycle(t *testing.T) {
	s := NewMemoryStore()
	docID, _ := s.PutDocument(domain.Document{Filename: "a.txt", Text: "abc"})

	ids, err := s.CreateDocumentChunks(docID, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}

	view, ok, _ := s.GetChunkByID(ids[1])
	if !ok || view.Chunk.Ordinal != 1 || view.Filename != "a.txt" {
		t.Errorf("unexpected view: %+v", view)
	}

	fresh, _ := s.CreateDocumentChunks(docID, []string{"c"})
	if err := s.DeleteChunks(ids); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.GetChunkByID(ids[0]); ok {
		t.Error("deleted chunk should be absent")
	}
	if remaining, _ := s.DocumentChunkIDs(docID); len(remaining) != 1 || remaining[0] != fresh[0] {
		t.Errorf("expected only %v, got %v", fresh, remaining)
	}
	if fresh[0] <= ids[1] {
		t.Errorf("expected fresh id above %d, got %d", ids[1], fresh[0])
	}

	s.DeleteChunk(fresh[0])
	if _, ok, _ := s.GetChunkByID(fresh[0]); ok {
		t.Error("deleted chunk should be absent")
	}

	if _, err := s.CreateDocumentChunks(42, []string{"x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_RecordErrLeavesNothing(t *testing.T) {
	s := NewMemoryStore()
	s.RecordErr = errors.New("disk full")

	if _, err := s.RecordQueryWithCitations(domain.QueryRecord{Question: "q"}, []domain.Citation{{ChunkID: 1}}); err == nil {
		t.Fatal("expected error")
	}
	stats, _ := s.GetStats()
	if stats.TotalQueries != 0 {
		t.Errorf("expected no queries recorded, got %d", stats.TotalQueries)
	}
}
