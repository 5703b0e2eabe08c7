package coverage

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/covbin/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
)

// MinLeadingMatch is the minimum length of the leading M operation of a
// usable alignment.
const MinLeadingMatch = 35

// ScanOpts controls ScanAlignments.
type ScanOpts struct {
	// PairedEnd requires alignments to be part of a proper pair.
	PairedEnd bool
	// Binary records presence (1) instead of counting hits.
	Binary bool
}

// UsableAlignment reports whether r is a mapped, QC-passing, non-duplicate,
// forward-strand primary alignment starting with at least MinLeadingMatch
// matched bases (and, if pairedEnd, a proper pair).
func UsableAlignment(r *sam.Record, pairedEnd bool) bool {
	const rejectFlags = sam.Unmapped | sam.QCFail | sam.Duplicate | sam.Reverse | sam.Secondary | sam.Supplementary
	if r.Flags&rejectFlags != 0 {
		return false
	}
	if len(r.Cigar) == 0 {
		return false
	}
	if op := r.Cigar[0]; op.Type() != sam.CigarMatch || op.Len() < MinLeadingMatch {
		return false
	}
	if pairedEnd && r.Flags&sam.ProperPair == 0 {
		return false
	}
	return true
}

// ScanAlignments fills state.Hits and state.FragLens from the alignments of
// the BAM reference named state.Name.  A reference without reads leaves the
// tracks untouched.
func ScanAlignments(p bamprovider.Provider, state *ChromState, opts ScanOpts) error {
	var (
		readCount, keptCount int
		n                    = state.Len()
		prevPos              = -1
		iter                 = bamprovider.NewRefIterator(p, state.Name)
	)
	for iter.Scan() {
		r := iter.Record()
		if r.Pos < prevPos {
			_ = iter.Close()
			return fmt.Errorf("coverage.ScanAlignments: the alignments on %s are not properly sorted: %s at %d follows position %d",
				state.Name, r.Name, r.Pos, prevPos)
		}
		prevPos = r.Pos
		readCount++
		if !UsableAlignment(r, opts.PairedEnd) {
			continue
		}
		if r.Pos < 0 || r.Pos >= n {
			_ = iter.Close()
			return fmt.Errorf("coverage.ScanAlignments: %s: alignment %s at %d is past the reference length %d",
				state.Name, r.Name, r.Pos, n)
		}
		keptCount++
		if opts.Binary {
			state.Hits[r.Pos] = 1
		} else {
			state.Hits.Add(r.Pos)
		}
		state.FragLens[r.Pos] = ClampFragmentLength(r.TempLen)
	}
	if err := iter.Close(); err != nil {
		return err
	}
	log.Printf("%s: Kept %d of %d total reads", state.Name, keptCount, readCount)
	return nil
}
