package usecase

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"docrag/internal/adapter/fs"
	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

var supportedFiletypes = map[string]bool{
	"txt":      true,
	"md":       true,
	"markdown": true,
}

// DocumentUseCase registers plain-text documents and lists them.
type DocumentUseCase struct {
	store  port.ChunkStore
	walker port.FileWalker
}

func NewDocumentUseCase(store port.ChunkStore, walker port.FileWalker) *DocumentUseCase {
	return &DocumentUseCase{store: store, walker: walker}
}

// AddResult contains the results of an ingestion run.
type AddResult struct {
	Added   int
	Updated int
	Skipped int
	Errors  []string
}

// Add registers every supported file found under the given paths. A file
// already registered under the same absolute path has its text replaced;
// the new text is chunked by the next build.
func (u *DocumentUseCase) Add(paths []string, progress func(path string)) (*AddResult, error) {
	result := &AddResult{}

	existing, err := u.store.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("failed to list existing docs: %w", err)
	}
	byPath := make(map[string]domain.Document, len(existing))
	for _, doc := range existing {
		byPath[doc.Path] = doc
	}

	for _, root := range paths {
		files, err := u.walker.Walk(root)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to walk %s: %v", root, err))
			continue
		}

		for _, file := range files {
			if progress != nil {
				progress(file.Path)
			}

			filetype := filetypeOf(file.Path)
			if !supportedFiletypes[filetype] {
				logger.Debug("skipping %s: unsupported file type %q", file.Path, filetype)
				result.Skipped++
				continue
			}

			text, err := fs.ReadText(file.Path)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to read %s: %v", file.Path, err))
				continue
			}

			doc := domain.Document{
				Filename: filepath.Base(file.Path),
				Filetype: filetype,
				Path:     file.Path,
				Text:     text,
			}
			prev, known := byPath[file.Path]
			if known {
				if prev.Text == text {
					result.Skipped++
					continue
				}
				doc.ID = prev.ID
				doc.CreatedAt = prev.CreatedAt
			}

			id, err := u.store.PutDocument(doc)
			if err != nil {
				return nil, fmt.Errorf("failed to store document %s: %w", file.Path, err)
			}
			doc.ID = id
			byPath[file.Path] = doc

			if known {
				result.Updated++
			} else {
				result.Added++
			}
		}
	}

	return result, nil
}

// List returns all documents, newest first.
func (u *DocumentUseCase) List() ([]domain.Document, error) {
	docs, err := u.store.ListDocuments()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].ID > docs[j].ID
	})
	return docs, nil
}

func (u *DocumentUseCase) Stats() (domain.Stats, error) {
	return u.store.GetStats()
}

func filetypeOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
