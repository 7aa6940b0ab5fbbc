package bloom

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

// Algorithm names the hashing scheme recorded alongside serialized filters.
const Algorithm = "murmur3_128"

// Encoded is the JSON form of a filter stored in an extract's metadata
// sidecar. Data is base64 of the snappy-compressed little-endian bit array.
type Encoded struct {
	Column    string `json:"column"`
	Algorithm string `json:"algorithm"`
	NumBits   int    `json:"num_bits"`
	NumHashes int    `json:"num_hashes"`
	Count     uint64 `json:"count"`
	Data      string `json:"data"`
}

// Encode serializes f for the named column.
func (f *Filter) Encode(column string) *Encoded {
	raw := make([]byte, len(f.bits)*8)
	for i, word := range f.bits {
		binary.LittleEndian.PutUint64(raw[i*8:], word)
	}
	return &Encoded{
		Column:    column,
		Algorithm: Algorithm,
		NumBits:   int(f.numBits),
		NumHashes: int(f.numHashes),
		Count:     f.count,
		Data:      base64.StdEncoding.EncodeToString(snappy.Encode(nil, raw)),
	}
}

// Decode reconstructs a filter.
func Decode(e *Encoded) (*Filter, error) {
	if e == nil {
		return nil, errors.New("bloom: nil encoded filter")
	}
	if e.Algorithm != Algorithm {
		return nil, fmt.Errorf("bloom: unsupported algorithm %q", e.Algorithm)
	}
	if e.NumBits <= 0 || e.NumBits%64 != 0 || e.NumHashes <= 0 {
		return nil, fmt.Errorf("bloom: invalid parameters bits=%d hashes=%d", e.NumBits, e.NumHashes)
	}

	compressed, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return nil, fmt.Errorf("bloom: invalid base64 data: %w", err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("bloom: snappy decompress failed: %w", err)
	}

	numWords := e.NumBits / 64
	if len(raw) != numWords*8 {
		return nil, fmt.Errorf("bloom: expected %d bytes, got %d", numWords*8, len(raw))
	}
	bits := make([]uint64, numWords)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}

	return &Filter{
		bits:      bits,
		numBits:   uint64(e.NumBits),
		numHashes: uint64(e.NumHashes),
		count:     e.Count,
	}, nil
}
