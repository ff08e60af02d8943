package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"docrag/internal/domain"
	"docrag/internal/port"
)

var (
	bucketDocs       = []byte("docs")
	bucketDocTexts   = []byte("doc_texts")
	bucketChunks     = []byte("chunks")
	bucketChunkTexts = []byte("chunk_texts")
	bucketDocChunks  = []byte("doc_chunks")
	bucketQueries    = []byte("queries")
	bucketQueryOrder = []byte("query_order")
	bucketCitations  = []byte("citations")
	bucketMeta       = []byte("meta")
)

var allBuckets = [][]byte{
	bucketDocs, bucketDocTexts, bucketChunks, bucketChunkTexts, bucketDocChunks,
	bucketQueries, bucketQueryOrder, bucketCitations, bucketMeta,
}

// BoltStore is the bbolt-backed persistence collaborator. bbolt holds an
// exclusive file lock while the database is open, so at most one process
// can build or record queries against the same store at a time.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string, lockTimeout time.Duration) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

type docMeta struct {
	Filename  string `json:"filename"`
	Filetype  string `json:"filetype"`
	Path      string `json:"path"`
	CreatedAt int64  `json:"created_at"`
}

type chunkMeta struct {
	DocID   uint64 `json:"doc_id"`
	Ordinal int    `json:"ordinal"`
}

type queryMeta struct {
	Question  string            `json:"question"`
	Model     string            `json:"model"`
	Answer    string            `json:"answer"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

type citationEntry struct {
	ChunkID uint64  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// PutDocument registers a document and its extracted text. A zero ID
// allocates a new one.
func (s *BoltStore) PutDocument(doc domain.Document) (uint64, error) {
	id := doc.ID
	err := s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocs)
		if id == 0 {
			seq, err := docs.NextSequence()
			if err != nil {
				return err
			}
			id = seq
		}
		created := doc.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		meta := docMeta{
			Filename:  doc.Filename,
			Filetype:  doc.Filetype,
			Path:      doc.Path,
			CreatedAt: created.Unix(),
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := docs.Put(itob(id), data); err != nil {
			return err
		}
		return tx.Bucket(bucketDocTexts).Put(itob(id), []byte(doc.Text))
	})
	return id, err
}

func (s *BoltStore) GetDocument(id uint64) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get(itob(id))
		if data == nil {
			return fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		doc = toDocument(id, meta, tx.Bucket(bucketDocTexts).Get(itob(id)))
		return nil
	})
	return doc, err
}

// ListDocuments returns all documents in ascending id order.
func (s *BoltStore) ListDocuments() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		texts := tx.Bucket(bucketDocTexts)
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			docs = append(docs, toDocument(btoi(k), meta, texts.Get(k)))
			return nil
		})
	})
	return docs, err
}

func toDocument(id uint64, meta docMeta, text []byte) domain.Document {
	return domain.Document{
		ID:        id,
		Filename:  meta.Filename,
		Filetype:  meta.Filetype,
		Path:      meta.Path,
		Text:      string(text),
		CreatedAt: time.Unix(meta.CreatedAt, 0),
	}
}

func (s *BoltStore) CreateDocumentChunks(docID uint64, texts []string) ([]uint64, error) {
	var ids []uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		ids, err = createChunks(tx, docID, texts)
		return err
	})
	return ids, err
}

func createChunks(tx *bbolt.Tx, docID uint64, texts []string) ([]uint64, error) {
	if tx.Bucket(bucketDocs).Get(itob(docID)) == nil {
		return nil, fmt.Errorf("document %d: %w", docID, domain.ErrNotFound)
	}

	chunks := tx.Bucket(bucketChunks)
	chunkTexts := tx.Bucket(bucketChunkTexts)
	docChunks := tx.Bucket(bucketDocChunks)

	var chunkIDs []uint64
	if existing := docChunks.Get(itob(docID)); existing != nil {
		if err := json.Unmarshal(existing, &chunkIDs); err != nil {
			return nil, err
		}
	}

	ids := make([]uint64, 0, len(texts))
	for i, text := range texts {
		id, err := chunks.NextSequence()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(chunkMeta{DocID: docID, Ordinal: i})
		if err != nil {
			return nil, err
		}
		if err := chunks.Put(itob(id), data); err != nil {
			return nil, err
		}
		if err := chunkTexts.Put(itob(id), []byte(text)); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	chunkIDs = append(chunkIDs, ids...)
	data, err := json.Marshal(chunkIDs)
	if err != nil {
		return nil, err
	}
	if err := docChunks.Put(itob(docID), data); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *BoltStore) DocumentChunkIDs(docID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocChunks).Get(itob(docID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &ids)
	})
	return ids, err
}

// DeleteChunks removes the chunks and unlinks them from their documents
// in one transaction.
func (s *BoltStore) DeleteChunks(ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		chunkTexts := tx.Bucket(bucketChunkTexts)
		docChunks := tx.Bucket(bucketDocChunks)

		removed := make(map[uint64][]uint64)
		for _, id := range ids {
			data := chunks.Get(itob(id))
			if data == nil {
				continue
			}
			var meta chunkMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				return err
			}
			removed[meta.DocID] = append(removed[meta.DocID], id)
			if err := chunks.Delete(itob(id)); err != nil {
				return err
			}
			if err := chunkTexts.Delete(itob(id)); err != nil {
				return err
			}
		}

		for docID, gone := range removed {
			var current []uint64
			if data := docChunks.Get(itob(docID)); data != nil {
				if err := json.Unmarshal(data, &current); err != nil {
					return err
				}
			}
			remaining := withoutIDs(current, gone)
			if len(remaining) == 0 {
				if err := docChunks.Delete(itob(docID)); err != nil {
					return err
				}
				continue
			}
			data, err := json.Marshal(remaining)
			if err != nil {
				return err
			}
			if err := docChunks.Put(itob(docID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func withoutIDs(ids, drop []uint64) []uint64 {
	skip := make(map[uint64]struct{}, len(drop))
	for _, id := range drop {
		skip[id] = struct{}{}
	}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *BoltStore) GetChunkByID(id uint64) (domain.ChunkView, bool, error) {
	var view domain.ChunkView
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get(itob(id))
		if data == nil {
			return nil
		}
		var meta chunkMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		view.Chunk = domain.Chunk{
			ID:      id,
			DocID:   meta.DocID,
			Ordinal: meta.Ordinal,
			Text:    string(tx.Bucket(bucketChunkTexts).Get(itob(id))),
		}
		if docData := tx.Bucket(bucketDocs).Get(itob(meta.DocID)); docData != nil {
			var dm docMeta
			if err := json.Unmarshal(docData, &dm); err == nil {
				view.Filename = dm.Filename
			}
		}
		found = true
		return nil
	})
	return view, found, err
}

func (s *BoltStore) RecordQuery(rec domain.QueryRecord) (string, error) {
	var id string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		id, err = putQuery(tx, rec)
		return err
	})
	return id, err
}

func (s *BoltStore) RecordCitations(queryID string, citations []domain.Citation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketQueries).Get([]byte(queryID)) == nil {
			return fmt.Errorf("query %s: %w", queryID, domain.ErrNotFound)
		}
		return putCitations(tx, queryID, citations)
	})
}

// RecordQueryWithCitations stores the query and its citations in one
// transaction, so either both are visible or neither is.
func (s *BoltStore) RecordQueryWithCitations(rec domain.QueryRecord, citations []domain.Citation) (string, error) {
	var id string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		id, err = putQuery(tx, rec)
		if err != nil {
			return err
		}
		return putCitations(tx, id, citations)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func putQuery(tx *bbolt.Tx, rec domain.QueryRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	data, err := json.Marshal(queryMeta{
		Question:  rec.Question,
		Model:     rec.Model,
		Answer:    rec.Answer,
		Artifacts: rec.Artifacts,
		CreatedAt: created.UnixNano(),
	})
	if err != nil {
		return "", err
	}

	queries := tx.Bucket(bucketQueries)
	if queries.Get([]byte(id)) != nil {
		return "", fmt.Errorf("query %s already recorded", id)
	}
	if err := queries.Put([]byte(id), data); err != nil {
		return "", err
	}

	order := tx.Bucket(bucketQueryOrder)
	seq, err := order.NextSequence()
	if err != nil {
		return "", err
	}
	if err := order.Put(itob(seq), []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

func putCitations(tx *bbolt.Tx, queryID string, citations []domain.Citation) error {
	b := tx.Bucket(bucketCitations)
	var entries []citationEntry
	if existing := b.Get([]byte(queryID)); existing != nil {
		if err := json.Unmarshal(existing, &entries); err != nil {
			return err
		}
	}
	for _, c := range citations {
		entries = append(entries, citationEntry{ChunkID: c.ChunkID, Score: c.Score})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return b.Put([]byte(queryID), data)
}

func (s *BoltStore) GetQuery(id string) (domain.QueryRecord, error) {
	var rec domain.QueryRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketQueries).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("query %s: %w", id, domain.ErrNotFound)
		}
		var err error
		rec, err = toQueryRecord(id, data)
		return err
	})
	return rec, err
}

// ListQueries returns up to limit queries, most recent first.
func (s *BoltStore) ListQueries(limit int) ([]domain.QueryRecord, error) {
	var records []domain.QueryRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		queries := tx.Bucket(bucketQueries)
		c := tx.Bucket(bucketQueryOrder).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			data := queries.Get(v)
			if data == nil {
				continue
			}
			rec, err := toQueryRecord(string(v), data)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func toQueryRecord(id string, data []byte) (domain.QueryRecord, error) {
	var meta queryMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.QueryRecord{}, err
	}
	return domain.QueryRecord{
		ID:        id,
		Question:  meta.Question,
		Model:     meta.Model,
		Answer:    meta.Answer,
		Artifacts: meta.Artifacts,
		CreatedAt: time.Unix(0, meta.CreatedAt),
	}, nil
}

// ListCitations returns the query's citations with filenames, highest score first.
func (s *BoltStore) ListCitations(queryID string) ([]domain.Citation, error) {
	var citations []domain.Citation
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCitations).Get([]byte(queryID))
		if data == nil {
			return nil
		}
		var entries []citationEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
		chunks := tx.Bucket(bucketChunks)
		docs := tx.Bucket(bucketDocs)
		for _, e := range entries {
			c := domain.Citation{QueryID: queryID, ChunkID: e.ChunkID, Score: e.Score}
			if cd := chunks.Get(itob(e.ChunkID)); cd != nil {
				var cm chunkMeta
				if json.Unmarshal(cd, &cm) == nil {
					if dd := docs.Get(itob(cm.DocID)); dd != nil {
						var dm docMeta
						if json.Unmarshal(dd, &dm) == nil {
							c.Filename = dm.Filename
						}
					}
				}
			}
			citations = append(citations, c)
		}
		return nil
	})
	sort.SliceStable(citations, func(i, j int) bool {
		return citations[i].Score > citations[j].Score
	})
	return citations, err
}

func (s *BoltStore) GetStats() (domain.Stats, error) {
	var stats domain.Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.TotalDocs = tx.Bucket(bucketDocs).Stats().KeyN
		stats.TotalChunks = tx.Bucket(bucketChunks).Stats().KeyN
		stats.TotalQueries = tx.Bucket(bucketQueries).Stats().KeyN
		return nil
	})
	return stats, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ port.ChunkStore = (*BoltStore)(nil)
