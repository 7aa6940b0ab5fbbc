// Package bloom builds membership filters over decoded key columns so that
// consumers can skip extracts that cannot contain a given household or person.
package bloom

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// Filter provides probabilistic membership testing. It never yields false
// negatives: every added key is reported as possibly present.
type Filter struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a filter with the given number of bits (rounded up to a
// multiple of 64) and hash functions.
func New(numBits, numHashes int) *Filter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	numWords := (numBits + 63) / 64
	return &Filter{
		bits:      make([]uint64, numWords),
		numBits:   uint64(numWords * 64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates creates a filter sized for expectedKeys at the target
// false positive rate.
func NewWithEstimates(expectedKeys int, targetFPR float64) *Filter {
	numBits, numHashes := OptimalParameters(expectedKeys, targetFPR)
	return New(numBits, numHashes)
}

// OptimalParameters returns the bit and hash counts for n keys at rate p:
// m = -n ln(p) / ln(2)^2 and k = (m/n) ln(2).
func OptimalParameters(expectedKeys int, targetFPR float64) (numBits, numHashes int) {
	if expectedKeys <= 0 {
		expectedKeys = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedKeys)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil((m / n) * math.Ln2))

	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add inserts a key.
func (f *Filter) Add(key string) {
	h1, h2 := murmur3.Sum128([]byte(key))
	for i := uint64(0); i < f.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// MayContain reports whether key might have been added. False means the key
// is definitely absent.
func (f *Filter) MayContain(key string) bool {
	h1, h2 := murmur3.Sum128([]byte(key))
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of keys added.
func (f *Filter) Count() uint64 {
	return f.count
}

// NumBits returns the filter size in bits.
func (f *Filter) NumBits() int {
	return int(f.numBits)
}

// NumHashes returns the number of hash functions.
func (f *Filter) NumHashes() int {
	return int(f.numHashes)
}

// FalsePositiveRate estimates the current false positive rate,
// (1 - e^(-kn/m))^k.
func (f *Filter) FalsePositiveRate() float64 {
	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	n := float64(f.count)
	m := float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

// ForColumn builds a filter over the distinct non-empty values of one
// decoded column.
func ForColumn(values []string, targetFPR float64) *Filter {
	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			distinct[v] = struct{}{}
		}
	}
	f := NewWithEstimates(len(distinct), targetFPR)
	for v := range distinct {
		f.Add(v)
	}
	return f
}
