package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("invalid configuration")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrNoChunksAvailable = errors.New("no chunks available: no document yielded text")
	ErrIndexNotFound     = errors.New("index not found")
	ErrIndexUnavailable  = errors.New("index unavailable")
	ErrCorruptIndex      = errors.New("corrupt index")
	ErrModelMismatch     = errors.New("embedding model mismatch")
	ErrNotFound          = errors.New("not found")
)

// ConfigError reports an invalid chunking or retrieval setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// DimensionMismatchError reports a vector whose length differs from the index dimension.
type DimensionMismatchError struct {
	Expected int
	Got      int
	Position int
}

func (e *DimensionMismatchError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("embedding dimension mismatch at position %d: expected %d, got %d", e.Position, e.Expected, e.Got)
	}
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

type CorruptIndexError struct {
	Reason string
	Err    error
}

func (e *CorruptIndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt index: %s: %v", e.Reason, e.Err)
	}
	return "corrupt index: " + e.Reason
}

func (e *CorruptIndexError) Is(target error) bool {
	return target == ErrCorruptIndex
}

func (e *CorruptIndexError) Unwrap() error {
	return e.Err
}

// ModelMismatchError is returned when a query is embedded with a different
// model than the one recorded in the index metadata.
type ModelMismatchError struct {
	IndexModel string
	QueryModel string
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("embedding model mismatch: index built with %q, query embedded with %q", e.IndexModel, e.QueryModel)
}

func (e *ModelMismatchError) Is(target error) bool {
	return target == ErrModelMismatch
}
