package schema

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/spaolacci/murmur3"

	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// Fingerprint hashes the byte grid of a schema (names and positions, not
// descriptions). Two layouts with the same fingerprint decode identically.
func Fingerprint(s *types.Schema) string {
	h := murmur3.New128()
	var buf [8]byte
	for _, f := range s.Fields {
		h.Write([]byte(f.Name))
		binary.LittleEndian.PutUint32(buf[:4], uint32(f.StartPos))
		binary.LittleEndian.PutUint32(buf[4:], uint32(f.EndPos))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
