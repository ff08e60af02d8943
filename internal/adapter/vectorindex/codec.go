package vectorindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var magic = [8]byte{'D', 'R', 'F', 'L', 'A', 'T', '0', '1'}

var errBadMagic = errors.New("not a flat index blob")

// MarshalBinary encodes the index as magic, dimension, count and the
// little-endian float32 payload.
func (f *Flat) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(16 + 4*f.dimension*len(f.vectors))
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	header := make([]byte, 16)
	copy(header, magic[:])
	binary.LittleEndian.PutUint32(header[8:], uint32(f.dimension))
	binary.LittleEndian.PutUint32(header[12:], uint32(len(f.vectors)))

	n, err := w.Write(header)
	written := int64(n)
	if err != nil {
		return written, err
	}

	row := make([]byte, 4*f.dimension)
	for _, v := range f.vectors {
		for i, x := range v {
			binary.LittleEndian.PutUint32(row[4*i:], math.Float32bits(x))
		}
		n, err := w.Write(row)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// UnmarshalBinary replaces the index contents with the decoded blob.
// Stored vectors are taken as already normalized.
func (f *Flat) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("blob too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], magic[:]) {
		return errBadMagic
	}

	dim := binary.LittleEndian.Uint32(data[8:])
	count := binary.LittleEndian.Uint32(data[12:])

	payload := data[16:]
	if err := checkPayload(uint64(len(payload)), dim, count); err != nil {
		return err
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		v := make([]float32, dim)
		row := payload[4*int(dim)*i:]
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[4*j:]))
		}
		vectors[i] = v
	}

	f.dimension = int(dim)
	f.vectors = vectors
	return nil
}

// checkPayload matches the header against the payload length before
// anything is allocated. Header fields are never multiplied together.
func checkPayload(size uint64, dim, count uint32) error {
	if dim == 0 {
		if count != 0 || size != 0 {
			return fmt.Errorf("header declares %d vectors of dimension 0 with %d payload bytes", count, size)
		}
		return nil
	}
	row := 4 * uint64(dim)
	if size%row != 0 || size/row != uint64(count) {
		return fmt.Errorf("payload size %d does not match %d vectors of dimension %d", size, count, dim)
	}
	return nil
}
