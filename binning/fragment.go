package binning

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/covbin/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
)

const (
	// DefaultMapqThreshold is the default minimum mapping quality of a
	// fragment's reads in fragment mode.
	DefaultMapqThreshold = 3
	// mapqNotAvailable is the MAPQ value meaning "not available".
	mapqNotAvailable = 255
)

// fragmentBinner assigns read-pair fragments of one chromosome to the
// predefined bin they overlap most.  Records must arrive in coordinate order.
//
// Each read name goes through three states: unseen, counted (the left mate
// was binned; nameToBin holds its bin) and resolved (the right mate was seen
// and the name dropped).  If the right mate turns out to be a duplicate, QC
// failure or low quality, the count is retracted when it is resolved.
type fragmentBinner struct {
	bins          []GenomicBin
	mapqThreshold int
	// binIndexStart is the first bin that may still overlap a fragment.
	binIndexStart int
	nameToBin     map[string]int
	// samePos holds the names of pairs whose mates share a start position and
	// of which one mate has been seen.
	samePos map[string]struct{}
	// usable is the net number of fragments counted.
	usable int64
}

func newFragmentBinner(bins []GenomicBin, mapqThreshold int) *fragmentBinner {
	return &fragmentBinner{
		bins:          bins,
		mapqThreshold: mapqThreshold,
		nameToBin:     map[string]int{},
		samePos:       map[string]struct{}{},
	}
}

// lowQuality reports whether r is a duplicate, failed QC, or has an
// unavailable or low mapping quality.
func lowQuality(r *sam.Record, mapqThreshold int) bool {
	if r.Flags&(sam.Duplicate|sam.QCFail) != 0 {
		return true
	}
	return r.MapQ == mapqNotAvailable || int(r.MapQ) < mapqThreshold
}

// pairedCandidate reports whether r is a mapped primary alignment of a
// properly paired read whose mate is mapped.
func pairedCandidate(r *sam.Record) bool {
	const rejectFlags = sam.Unmapped | sam.MateUnmapped | sam.Secondary | sam.Supplementary
	const requireFlags = sam.Paired | sam.ProperPair
	return r.Flags&rejectFlags == 0 && r.Flags&requireFlags == requireFlags
}

// add processes one alignment.
func (b *fragmentBinner) add(r *sam.Record) {
	if !pairedCandidate(r) {
		return
	}
	low := lowQuality(r, b.mapqThreshold)
	if binIdx, ok := b.nameToBin[r.Name]; ok {
		if low {
			b.usable--
			b.bins[binIdx].Count--
		}
		delete(b.nameToBin, r.Name)
		return
	}
	if low {
		return
	}
	if r.Ref == nil || r.MateRef == nil || r.Ref.ID() != r.MateRef.ID() {
		return
	}
	if r.Pos > r.MatePos {
		return
	}
	if r.Pos == r.MatePos {
		if _, ok := b.samePos[r.Name]; ok {
			delete(b.samePos, r.Name)
			return
		}
		b.samePos[r.Name] = struct{}{}
	}
	if r.TempLen == 0 {
		return
	}
	fragStart := r.Pos
	fragStop := r.Pos + r.TempLen
	for b.binIndexStart < len(b.bins) && b.bins[b.binIndexStart].Stop <= fragStart {
		b.binIndexStart++
	}
	if b.binIndexStart >= len(b.bins) {
		return
	}
	if best := findBestBin(b.bins, b.binIndexStart, fragStart, fragStop); best >= 0 {
		b.usable++
		b.bins[best].Count++
		b.nameToBin[r.Name] = best
	}
}

// findBestBin returns the index of the bin at or after startIdx that overlaps
// [fragStart, fragStop) the most, the first one on ties, or -1 if none does.
// The scan stops at the first bin that does not overlap.
func findBestBin(bins []GenomicBin, startIdx, fragStart, fragStop int) int {
	best, bestOverlap := -1, 0
	for i := startIdx; i < len(bins); i++ {
		lo, hi := bins[i].Start, bins[i].Stop
		if fragStart > lo {
			lo = fragStart
		}
		if fragStop < hi {
			hi = fragStop
		}
		overlap := hi - lo
		if overlap <= 0 {
			break
		}
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	return best
}

// binFragments counts the fragments of chromosome chrom into bins, whose
// counts must start at zero.  It returns the number of usable fragments.  A
// chromosome without alignments is not an error; one whose alignments include
// no paired read is.
func binFragments(p bamprovider.Provider, chrom string, bins []GenomicBin, mapqThreshold int) (int64, error) {
	var (
		b                 = newFragmentBinner(bins, mapqThreshold)
		nRecords, nPaired int64
		prevPos           = -1
		iter              = bamprovider.NewRefIterator(p, chrom)
	)
	for iter.Scan() {
		r := iter.Record()
		if r.Pos < prevPos {
			_ = iter.Close()
			return 0, fmt.Errorf("binning.binFragments: the alignments on %s are not properly sorted: %s", chrom, r.Name)
		}
		prevPos = r.Pos
		nRecords++
		if r.Flags&sam.Paired != 0 {
			nPaired++
		}
		b.add(r)
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if nRecords == 0 {
		log.Printf("%s: no alignments", chrom)
		return 0, nil
	}
	if nPaired == 0 {
		return 0, fmt.Errorf("binning.binFragments: no paired alignments found for %s", chrom)
	}
	log.Printf("%s: %d usable fragments from %d alignments", chrom, b.usable, nRecords)
	return b.usable, nil
}

// binGC sets the GC percentage of each bin from the reference sequence,
// ignoring N bases.  Bins past the end of seq are clipped.
func binGC(seq string, bins []GenomicBin) {
	for i := range bins {
		nt, gc := 0, 0
		stop := bins[i].Stop
		if stop > len(seq) {
			stop = len(seq)
		}
		for pos := bins[i].Start; pos < stop; pos++ {
			if IsN(seq[pos]) {
				continue
			}
			nt++
			if IsGC(seq[pos]) {
				gc++
			}
		}
		bins[i].GC = 0
		if nt > 0 {
			bins[i].GC = 100 * gc / nt
		}
	}
}

// needsGC reports whether any bin lacks a GC value.
func needsGC(bins []GenomicBin) bool {
	for _, b := range bins {
		if b.GC < 0 {
			return true
		}
	}
	return false
}
