package indexstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"docrag/internal/adapter/vectorindex"
	"docrag/internal/domain"
	"docrag/internal/port"
)

const (
	currentFile    = "CURRENT"
	generationsDir = "generations"
	indexFile      = "index.bin"
	metaFile       = "meta.json"
	tmpPrefix      = ".tmp-"
)

// FileStore keeps each built index in its own generation directory and
// publishes it by atomically replacing the CURRENT pointer file. Readers
// therefore observe either the previous complete generation or the new one.
type FileStore struct {
	dir  string
	keep int
	now  func() time.Time
}

type metaDocument struct {
	Mapping        []uint64  `json:"id_to_chunk_id"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	VectorCount    int       `json:"vector_count"`
	BuiltAt        time.Time `json:"built_at"`
}

// NewFileStore creates a store rooted at dir. keep is the number of
// generations retained after a publish (at least 1).
func NewFileStore(dir string, keep int) *FileStore {
	if keep < 1 {
		keep = 1
	}
	return &FileStore{dir: dir, keep: keep, now: time.Now}
}

// Dir is the index directory holding CURRENT and the generations.
func (s *FileStore) Dir() string {
	return s.dir
}

// Persist writes the index blob and its metadata into a new generation and
// makes it current.
func (s *FileStore) Persist(idx *vectorindex.Flat, mapping []uint64, model string) (port.Location, error) {
	if idx == nil {
		return port.Location{}, errors.New("persist: nil index")
	}
	if len(mapping) != idx.Len() {
		return port.Location{}, fmt.Errorf("persist: mapping has %d entries for %d vectors", len(mapping), idx.Len())
	}

	gensRoot := filepath.Join(s.dir, generationsDir)
	if err := os.MkdirAll(gensRoot, 0755); err != nil {
		return port.Location{}, fmt.Errorf("failed to create index directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(gensRoot, tmpPrefix)
	if err != nil {
		return port.Location{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	published := false
	defer func() {
		if !published {
			os.RemoveAll(tmpDir)
		}
	}()

	blob, err := idx.MarshalBinary()
	if err != nil {
		return port.Location{}, fmt.Errorf("failed to encode index: %w", err)
	}
	if err := writeFileSync(filepath.Join(tmpDir, indexFile), blob); err != nil {
		return port.Location{}, fmt.Errorf("failed to write index: %w", err)
	}

	builtAt := s.now().UTC()
	meta := metaDocument{
		Mapping:        mapping,
		EmbeddingModel: model,
		Dimension:      idx.Dimension(),
		VectorCount:    idx.Len(),
		BuiltAt:        builtAt,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return port.Location{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := writeFileSync(filepath.Join(tmpDir, metaFile), metaData); err != nil {
		return port.Location{}, fmt.Errorf("failed to write metadata: %w", err)
	}

	gen, err := s.nextGeneration(gensRoot, builtAt)
	if err != nil {
		return port.Location{}, err
	}
	genDir := filepath.Join(gensRoot, gen)
	if err := os.Rename(tmpDir, genDir); err != nil {
		return port.Location{}, fmt.Errorf("failed to stage generation: %w", err)
	}
	tmpDir = genDir
	syncDir(gensRoot)

	if err := s.swapCurrent(gen); err != nil {
		return port.Location{}, fmt.Errorf("failed to publish generation: %w", err)
	}
	published = true

	s.prune(gensRoot, gen)

	return port.Location{
		Dir:        genDir,
		IndexPath:  filepath.Join(genDir, indexFile),
		MetaPath:   filepath.Join(genDir, metaFile),
		Generation: gen,
	}, nil
}

// Load reads the current generation. Missing artifacts yield
// domain.ErrIndexNotFound; inconsistent artifacts a *domain.CorruptIndexError.
func (s *FileStore) Load() (*vectorindex.Flat, domain.IndexMetadata, error) {
	gen, err := s.Generation()
	if err != nil {
		return nil, domain.IndexMetadata{}, err
	}
	genDir := filepath.Join(s.dir, generationsDir, gen)

	meta, err := readMeta(filepath.Join(genDir, metaFile))
	if err != nil {
		return nil, domain.IndexMetadata{}, err
	}

	blob, err := os.ReadFile(filepath.Join(genDir, indexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.IndexMetadata{}, fmt.Errorf("%w: missing %s in generation %s", domain.ErrIndexNotFound, indexFile, gen)
		}
		return nil, domain.IndexMetadata{}, fmt.Errorf("failed to read index: %w", err)
	}

	idx := vectorindex.New(0)
	if err := idx.UnmarshalBinary(blob); err != nil {
		return nil, domain.IndexMetadata{}, &domain.CorruptIndexError{Reason: "unreadable index blob", Err: err}
	}
	if len(meta.Mapping) != idx.Len() {
		return nil, domain.IndexMetadata{}, &domain.CorruptIndexError{
			Reason: fmt.Sprintf("mapping has %d entries but index holds %d vectors", len(meta.Mapping), idx.Len()),
		}
	}
	if meta.Dimension != 0 && idx.Len() > 0 && meta.Dimension != idx.Dimension() {
		return nil, domain.IndexMetadata{}, &domain.CorruptIndexError{
			Reason: fmt.Sprintf("metadata dimension %d does not match index dimension %d", meta.Dimension, idx.Dimension()),
		}
	}

	return idx, domain.IndexMetadata{
		EmbeddingModel: meta.EmbeddingModel,
		Dimension:      idx.Dimension(),
		VectorCount:    idx.Len(),
		Mapping:        meta.Mapping,
		BuiltAt:        meta.BuiltAt,
		Generation:     gen,
		SizeBytes:      int64(len(blob)),
	}, nil
}

// Describe returns the current generation's metadata without decoding the
// vectors. Mapping is left empty.
func (s *FileStore) Describe() (domain.IndexMetadata, error) {
	gen, err := s.Generation()
	if err != nil {
		return domain.IndexMetadata{}, err
	}
	genDir := filepath.Join(s.dir, generationsDir, gen)

	meta, err := readMeta(filepath.Join(genDir, metaFile))
	if err != nil {
		return domain.IndexMetadata{}, err
	}

	info, err := os.Stat(filepath.Join(genDir, indexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.IndexMetadata{}, fmt.Errorf("%w: missing %s in generation %s", domain.ErrIndexNotFound, indexFile, gen)
		}
		return domain.IndexMetadata{}, err
	}

	count := meta.VectorCount
	if count == 0 {
		count = len(meta.Mapping)
	}

	return domain.IndexMetadata{
		EmbeddingModel: meta.EmbeddingModel,
		Dimension:      meta.Dimension,
		VectorCount:    count,
		BuiltAt:        meta.BuiltAt,
		Generation:     gen,
		SizeBytes:      info.Size(),
	}, nil
}

// Generation returns the name of the published generation.
func (s *FileStore) Generation() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: no index has been built in %s", domain.ErrIndexNotFound, s.dir)
		}
		return "", fmt.Errorf("failed to read %s: %w", currentFile, err)
	}
	gen := strings.TrimSpace(string(data))
	if gen == "" || strings.ContainsAny(gen, `/\`) {
		return "", &domain.CorruptIndexError{Reason: fmt.Sprintf("invalid %s contents %q", currentFile, gen)}
	}
	return gen, nil
}

func readMeta(path string) (metaDocument, error) {
	var meta metaDocument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return meta, fmt.Errorf("%w: missing %s", domain.ErrIndexNotFound, filepath.Base(path))
		}
		return meta, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, &domain.CorruptIndexError{Reason: "unreadable metadata", Err: err}
	}
	return meta, nil
}

func (s *FileStore) swapCurrent(gen string) error {
	tmp := filepath.Join(s.dir, currentFile+".tmp")
	if err := writeFileSync(tmp, []byte(gen+"\n")); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, currentFile)); err != nil {
		os.Remove(tmp)
		return err
	}
	syncDir(s.dir)
	return nil
}

// nextGeneration names generations by build time so they sort chronologically.
func (s *FileStore) nextGeneration(gensRoot string, t time.Time) (string, error) {
	base := strconv.FormatInt(t.UnixNano(), 10)
	for i := 0; i < 100; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		if _, err := os.Stat(filepath.Join(gensRoot, name)); errors.Is(err, os.ErrNotExist) {
			return name, nil
		}
	}
	return "", fmt.Errorf("could not allocate generation name for %s", base)
}

// prune removes stale staging directories and all but the newest s.keep
// generations. The current generation is never removed.
func (s *FileStore) prune(gensRoot, current string) {
	entries, err := os.ReadDir(gensRoot)
	if err != nil {
		return
	}

	var gens []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, tmpPrefix) {
			os.RemoveAll(filepath.Join(gensRoot, name))
			continue
		}
		gens = append(gens, name)
	}

	// names share a fixed-width timestamp prefix, so lexical order is build order
	sort.Sort(sort.Reverse(sort.StringSlice(gens)))

	kept := 0
	for _, name := range gens {
		if name == current {
			kept++
			continue
		}
		if kept < s.keep {
			kept++
			continue
		}
		os.RemoveAll(filepath.Join(gensRoot, name))
	}
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
