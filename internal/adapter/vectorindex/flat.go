package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"docrag/internal/domain"
)

// Flat is an exact inner-product index over L2-normalized vectors.
// Slots are assigned in insertion order and never change.
// It is not safe for concurrent mutation; a built index is read-only.
type Flat struct {
	dimension int
	vectors   [][]float32
}

// Hit is a single search result.
type Hit struct {
	Slot  int
	Score float64
}

// New returns an empty index of the given dimension.
func New(dimension int) *Flat {
	return &Flat{dimension: dimension}
}

// Build normalizes copies of the vectors and returns an index holding them.
// All vectors must share one positive dimension.
func Build(vectors [][]float32) (*Flat, error) {
	if len(vectors) == 0 {
		return New(0), nil
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, &domain.DimensionMismatchError{Expected: 1, Got: 0, Position: 0}
	}

	idx := &Flat{
		dimension: dim,
		vectors:   make([][]float32, 0, len(vectors)),
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, &domain.DimensionMismatchError{Expected: dim, Got: len(v), Position: i}
		}
		idx.vectors = append(idx.vectors, Normalize(v))
	}
	return idx, nil
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	return len(f.vectors)
}

// Dimension returns the vector dimension, or 0 for an index built empty.
func (f *Flat) Dimension() int {
	return f.dimension
}

// Vector returns the stored (normalized) vector at slot.
func (f *Flat) Vector(slot int) []float32 {
	return f.vectors[slot]
}

// Search returns up to k slots ranked by inner product with the normalized
// query, highest first. Equal scores are ordered by ascending slot.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search: k must be positive, got %d", k)
	}
	if len(f.vectors) == 0 {
		return []Hit{}, nil
	}
	if len(query) != f.dimension {
		return nil, &domain.DimensionMismatchError{Expected: f.dimension, Got: len(query), Position: -1}
	}

	q := Normalize(query)

	hits := make([]Hit, len(f.vectors))
	for slot, v := range f.vectors {
		hits[slot] = Hit{Slot: slot, Score: dot(q, v)}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Slot < hits[j].Slot
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Normalize returns a unit-length copy of v. A zero vector is returned as is.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}

	inv := 1.0 / math.Sqrt(sum)
	for i := range out {
		out[i] = float32(float64(out[i]) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
