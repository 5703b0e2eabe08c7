package interval

import (
	storeinterval "github.com/biogo/store/interval"
)

// span is a half-open interval stored in an OverlapIndex tree.
type span struct {
	start, end int
	id         uintptr
}

func (s *span) Overlap(b storeinterval.IntRange) bool {
	return s.end > b.Start && s.start < b.End
}

func (s *span) ID() uintptr { return s.id }

func (s *span) Range() storeinterval.IntRange {
	return storeinterval.IntRange{Start: s.start, End: s.end}
}

// OverlapIndex answers overlap-length queries against the intervals of a
// BEDUnion.  It is safe for concurrent use once built.
type OverlapIndex struct {
	trees map[string]*storeinterval.IntTree
}

// NewOverlapIndex builds one interval tree per chromosome of u.
func NewOverlapIndex(u *BEDUnion) (*OverlapIndex, error) {
	idx := &OverlapIndex{trees: map[string]*storeinterval.IntTree{}}
	var id uintptr
	for _, chrName := range u.ChrNames() {
		tree := &storeinterval.IntTree{}
		for _, e := range u.Entries(chrName) {
			id++
			if err := tree.Insert(&span{start: int(e.Start0), end: int(e.End), id: id}, true); err != nil {
				return nil, err
			}
		}
		tree.AdjustRanges()
		idx.trees[chrName] = tree
	}
	return idx, nil
}

// OverlapLength returns the number of bases of [start, end) on chrName that
// are covered by the index.  The intervals in the index are disjoint, so the
// per-interval overlaps add up without double counting.
func (idx *OverlapIndex) OverlapLength(chrName string, start, end int) int {
	tree, ok := idx.trees[chrName]
	if !ok || end <= start {
		return 0
	}
	n := 0
	for _, hit := range tree.Get(&span{start: start, end: end}) {
		r := hit.Range()
		lo, hi := r.Start, r.End
		if lo < start {
			lo = start
		}
		if hi > end {
			hi = end
		}
		if hi > lo {
			n += hi - lo
		}
	}
	return n
}
