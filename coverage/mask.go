package coverage

import (
	"math/bits"

	"github.com/grailbio/base/bitset"
)

// PositionMask is a bit vector with one bit per reference base.  A set bit
// marks a base that starts a unique, alignable k-mer.  Bits are set only while
// the mask is built from the reference; later steps may only clear them.
type PositionMask struct {
	n     int
	words []uintptr
}

// NewPositionMask returns an all-clear mask of n bits.
func NewPositionMask(n int) *PositionMask {
	return &PositionMask{
		n:     n,
		words: make([]uintptr, (n+bitset.BitsPerWord-1)/bitset.BitsPerWord),
	}
}

// NewPositionMaskFromSeq builds the mask for a reference sequence whose
// uppercase bases mark unique k-mer starts.
func NewPositionMaskFromSeq(seq string) *PositionMask {
	m := NewPositionMask(len(seq))
	for i := 0; i < len(seq); i++ {
		if c := seq[i]; c >= 'A' && c <= 'Z' {
			bitset.Set(m.words, i)
		}
	}
	return m
}

// Len returns the number of positions in the mask.
func (m *PositionMask) Len() int { return m.n }

// Test returns the bit at pos.
//
// REQUIRES: 0 <= pos < Len().
func (m *PositionMask) Test(pos int) bool { return bitset.Test(m.words, pos) }

// Set sets the bit at pos.
func (m *PositionMask) Set(pos int) { bitset.Set(m.words, pos) }

// Clear clears the bit at pos.
func (m *PositionMask) Clear(pos int) { bitset.Clear(m.words, pos) }

// ClearRange clears the bits in [start, end).  The range is clipped to the
// mask.
func (m *PositionMask) ClearRange(start, end int) {
	if start < 0 {
		start = 0
	}
	if end > m.n {
		end = m.n
	}
	for pos := start; pos < end; pos++ {
		bitset.Clear(m.words, pos)
	}
}

// Count returns the number of set bits.
func (m *PositionMask) Count() int {
	total := 0
	for _, w := range m.words {
		total += bits.OnesCount(uint(w))
	}
	return total
}

// CountRange returns the number of set bits in [start, end), clipped to the
// mask.
func (m *PositionMask) CountRange(start, end int) int {
	if start < 0 {
		start = 0
	}
	if end > m.n {
		end = m.n
	}
	total := 0
	for pos := start; pos < end; pos++ {
		if bitset.Test(m.words, pos) {
			total++
		}
	}
	return total
}
