package binning

import (
	"github.com/grailbio/covbin/coverage"
)

// chromWalk holds the read-only inputs of one chromosome's binning walk.
type chromWalk struct {
	seq   string
	state *coverage.ChromState
	// gc is the GC bucket of each position; only read when ratio is non-nil.
	gc    []byte
	ratio *[NumGCBuckets]float64
	agg   aggregator
}

// binAccumulator tracks the bin under construction.
type binAccumulator struct {
	start    int
	nt       int
	gcCount  int
	possible int
	hits     []byte
	ratios   []float64
}

func (a *binAccumulator) reset(start int) {
	a.start = start
	a.nt, a.gcCount, a.possible = 0, 0, 0
	a.hits = a.hits[:0]
	a.ratios = a.ratios[:0]
}

func (a *binAccumulator) add(w *chromWalk, pos int) {
	c := w.seq[pos]
	if !IsN(c) {
		a.nt++
	}
	if IsGC(c) {
		a.gcCount++
	}
	if w.state.Mask.Test(pos) {
		a.possible++
		a.hits = append(a.hits, w.state.Hits[pos])
		if w.ratio != nil {
			a.ratios = append(a.ratios, w.ratio[w.gc[pos]])
		}
	}
}

// close returns the GC percentage and the aggregated count of the bin.
func (a *binAccumulator) close(w *chromWalk) (gc, count int) {
	if a.nt > 0 {
		gc = 100 * a.gcCount / a.nt
	}
	return gc, w.agg(a.hits, a.ratios)
}

// firstNonN returns the index of the first base of seq that is not N, or
// len(seq).
func firstNonN(seq string) int {
	pos := 0
	for pos < len(seq) && IsN(seq[pos]) {
		pos++
	}
	return pos
}

// binByCount walks the chromosome from its first non-N base and closes a bin
// each time binSize usable positions have been seen.  A trailing partial bin
// is dropped.
func binByCount(chrom string, w *chromWalk, binSize int) []GenomicBin {
	var (
		bins []GenomicBin
		acc  binAccumulator
		pos  = firstNonN(w.seq)
	)
	acc.reset(pos)
	for ; pos < len(w.seq); pos++ {
		acc.add(w, pos)
		if acc.possible == binSize {
			gc, count := acc.close(w)
			bins = append(bins, GenomicBin{Chrom: chrom, Start: acc.start, Stop: pos + 1, GC: gc, Count: count})
			acc.reset(pos + 1)
		}
	}
	return bins
}

// binPredefined fills in the GC and Count of each predefined bin.  Positions
// before the chromosome's first non-N base and past its end are not counted;
// a bin with no counted position gets GC 0 and the count of an empty bin.
func binPredefined(w *chromWalk, bins []GenomicBin) {
	var (
		acc  binAccumulator
		lead = firstNonN(w.seq)
	)
	for i := range bins {
		start, stop := bins[i].Start, bins[i].Stop
		if start < lead {
			start = lead
		}
		if stop > len(w.seq) {
			stop = len(w.seq)
		}
		acc.reset(start)
		for pos := start; pos < stop; pos++ {
			acc.add(w, pos)
		}
		bins[i].GC, bins[i].Count = acc.close(w)
	}
}
