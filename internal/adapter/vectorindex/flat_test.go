package vectorindex

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"docrag/internal/domain"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if !floatEquals(float64(v[0]), 0.6, 1e-6) || !floatEquals(float64(v[1]), 0.8, 1e-6) {
		t.Errorf("expected [0.6 0.8], got %v", v)
	}

	zero := Normalize([]float32{0, 0, 0})
	for _, x := range zero {
		if x != 0 {
			t.Errorf("expected zero vector to stay zero, got %v", zero)
		}
	}

	orig := []float32{1, 1}
	_ = Normalize(orig)
	if orig[0] != 1 || orig[1] != 1 {
		t.Error("Normalize modified its input")
	}
}

func TestBuildDimensionMismatch(t *testing.T) {
	_, err := Build([][]float32{{1, 0, 0}, {0, 1}})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}

	var dimErr *domain.DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatal("expected *DimensionMismatchError")
	}
	if dimErr.Expected != 3 || dimErr.Got != 2 || dimErr.Position != 1 {
		t.Errorf("unexpected error details: %+v", dimErr)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, err := Build(nil)
	if err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("expected no error on empty index, got %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestSearchReturnsAllWhenFewerThanK(t *testing.T) {
	vectors := sampleVectors(5, 8)
	idx, err := Build(vectors)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 5 {
		t.Fatalf("expected 5 vectors, got %d", idx.Len())
	}

	hits, err := idx.Search(vectors[2], 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 5 {
		t.Fatalf("expected 5 hits, got %d", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not sorted at %d: %f > %f", i, hits[i].Score, hits[i-1].Score)
		}
	}
}

func TestSearchSelfMatch(t *testing.T) {
	vectors := sampleVectors(20, 16)
	idx, err := Build(vectors)
	if err != nil {
		t.Fatal(err)
	}

	for slot, v := range vectors {
		hits, err := idx.Search(v, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) > 3 {
			t.Errorf("expected at most 3 hits, got %d", len(hits))
		}
		if hits[0].Slot != slot {
			t.Errorf("expected slot %d first, got %d", slot, hits[0].Slot)
		}
		if !floatEquals(hits[0].Score, 1.0, 1e-5) {
			t.Errorf("expected self similarity ~1.0, got %f", hits[0].Score)
		}
	}
}

func TestSearchTieBreaksBySlot(t *testing.T) {
	idx, err := Build([][]float32{{1, 0}, {0, 1}, {2, 0}, {1, 0}})
	if err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search([]float32{1, 0}, 4)
	if err != nil {
		t.Fatal(err)
	}

	want := []int{0, 2, 3, 1}
	for i, slot := range want {
		if hits[i].Slot != slot {
			t.Errorf("position %d: expected slot %d, got %d", i, slot, hits[i].Slot)
		}
	}
}

func TestSearchErrors(t *testing.T) {
	idx, err := Build([][]float32{{1, 0, 0}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := idx.Search([]float32{1, 0, 0}, 0); err == nil {
		t.Error("expected error for k=0")
	}
	if _, err := idx.Search([]float32{1, 0}, 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	vectors := sampleVectors(12, 8)
	idx, err := Build(vectors)
	if err != nil {
		t.Fatal(err)
	}

	data, err := idx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var loaded Flat
	if err := loaded.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != idx.Len() || loaded.Dimension() != idx.Dimension() {
		t.Fatalf("expected %d x %d, got %d x %d", idx.Len(), idx.Dimension(), loaded.Len(), loaded.Dimension())
	}

	for _, q := range vectors[:4] {
		before, _ := idx.Search(q, 5)
		after, _ := loaded.Search(q, 5)
		for i := range before {
			if before[i] != after[i] {
				t.Errorf("hit %d differs after round trip: %+v vs %+v", i, before[i], after[i])
			}
		}
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var f Flat
	if err := f.UnmarshalBinary([]byte("short")); err == nil {
		t.Error("expected error for short blob")
	}
	if err := f.UnmarshalBinary(make([]byte, 32)); err == nil {
		t.Error("expected error for bad magic")
	}

	idx, _ := Build(sampleVectors(2, 4))
	data, _ := idx.MarshalBinary()
	if err := f.UnmarshalBinary(data[:len(data)-3]); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestUnmarshalRejectsForgedHeader(t *testing.T) {
	header := func(dim, count uint32, payload int) []byte {
		b := make([]byte, 16+payload)
		copy(b, "DRFLAT01")
		binary.LittleEndian.PutUint32(b[8:], dim)
		binary.LittleEndian.PutUint32(b[12:], count)
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"zero dimension with vectors", header(0, math.MaxUint32, 0)},
		{"zero dimension with payload", header(0, 0, 8)},
		{"product wraps to zero", header(1<<31, 1<<31, 0)},
		{"huge count", header(1, math.MaxUint32, 4)},
		{"payload not a whole row", header(4, 1, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Flat
			if err := f.UnmarshalBinary(tt.data); err == nil {
				t.Errorf("expected error, got index with %d vectors", f.Len())
			}
		})
	}

	var empty Flat
	if err := empty.UnmarshalBinary(header(0, 0, 0)); err != nil {
		t.Errorf("empty index blob rejected: %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("expected empty index, got %d vectors", empty.Len())
	}
}

// sampleVectors returns deterministic, pairwise distinct vectors.
func sampleVectors(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(math.Sin(float64((i+1)*(j+3)))) + float32(i%3)*0.1
		}
		out[i] = v
	}
	return out
}

func floatEquals(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < tolerance
}
