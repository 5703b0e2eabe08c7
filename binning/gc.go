package binning

import (
	"context"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/covbin/coverage"
	"github.com/grailbio/covbin/interval"
)

// NumGCBuckets is the number of GC percentage classes, 0 to 100.
const NumGCBuckets = 101

// FragmentCutoff bounds the GC window of a position to FragmentCutoff times
// the mean fragment length.
const FragmentCutoff = 3

// IsGC reports whether c is a G or C base, in either case.
func IsGC(c byte) bool {
	switch c {
	case 'G', 'C', 'g', 'c':
		return true
	}
	return false
}

// IsN reports whether c is an N base, in either case.
func IsN(c byte) bool { return c == 'N' || c == 'n' }

// ReadGCContent computes, for each position of seq, the GC percentage of the
// forward-read window starting there.  The window length is the fragment
// length recorded at the position, capped at FragmentCutoff*meanFragLen, or
// meanFragLen if none was recorded.  Positions whose longest possible window
// would run off the end of seq get 0, as do all positions when meanFragLen is
// 0.
func ReadGCContent(seq string, fragLens coverage.FragmentLengthTrack, meanFragLen int16) []byte {
	gc := make([]byte, len(seq))
	maxFrag := int(meanFragLen) * FragmentCutoff
	limit := len(seq) - maxFrag - 1
	if meanFragLen <= 0 || limit <= 0 {
		return gc
	}
	// prefix[i] is the number of G/C bases in seq[:i].
	prefix := make([]int32, len(seq)+1)
	for i := 0; i < len(seq); i++ {
		prefix[i+1] = prefix[i]
		if IsGC(seq[i]) {
			prefix[i+1]++
		}
	}
	for pos := 0; pos < limit; pos++ {
		frag := int(fragLens[pos])
		if frag == 0 {
			frag = int(meanFragLen)
		} else if frag > maxFrag {
			frag = maxFrag
		}
		pct := 100 * int(prefix[pos+frag]-prefix[pos]) / frag
		if pct >= NumGCBuckets {
			pct = NumGCBuckets - 1
		}
		gc[pos] = byte(pct)
	}
	return gc
}

// GCHistogram counts, per GC bucket, the positions considered (Expected) and
// the hits observed at them (Observed).
type GCHistogram struct {
	Expected [NumGCBuckets]int64
	Observed [NumGCBuckets]int64
}

// Add counts the positions [start, end) of one chromosome.
func (h *GCHistogram) Add(gc []byte, hits coverage.HitTrack, start, end int) {
	if end > len(gc) {
		end = len(gc)
	}
	for pos := start; pos < end; pos++ {
		h.Expected[gc[pos]]++
		h.Observed[gc[pos]] += int64(hits[pos])
	}
}

// AddChrom counts a whole chromosome, or only the positions inside the given
// region endpoints when endpoints is non-nil.
func (h *GCHistogram) AddChrom(gc []byte, hits coverage.HitTrack, endpoints []interval.PosType) {
	if endpoints == nil {
		h.Add(gc, hits, 0, len(gc))
		return
	}
	var start, end interval.PosType
	us := interval.NewUnionScanner(endpoints)
	for us.Scan(&start, &end, interval.PosType(len(gc))) {
		h.Add(gc, hits, int(start), int(end))
	}
}

// Merge adds the counts of o to h.
func (h *GCHistogram) Merge(o *GCHistogram) {
	for i := range h.Expected {
		h.Expected[i] += o.Expected[i]
		h.Observed[i] += o.Observed[i]
	}
}

// GCModel is the GC-bias correction table.  Ratio[gc] is the observed over
// expected hit rate of GC bucket gc, relative to the overall rate.
type GCModel struct {
	GCHistogram
	Ratio [NumGCBuckets]float64
}

// NewGCModel derives the correction table from a histogram.  Zero counts are
// replaced by 1 before the ratios are computed, and so are zero totals.
func NewGCModel(h GCHistogram) *GCModel {
	m := &GCModel{GCHistogram: h}
	var sumExpected, sumObserved int64
	for i := 0; i < NumGCBuckets; i++ {
		sumExpected += h.Expected[i]
		sumObserved += h.Observed[i]
	}
	if sumExpected == 0 {
		sumExpected = 1
	}
	if sumObserved == 0 {
		sumObserved = 1
	}
	scale := float64(sumExpected) / float64(sumObserved)
	for i := 0; i < NumGCBuckets; i++ {
		if m.Expected[i] == 0 {
			m.Expected[i] = 1
		}
		if m.Observed[i] == 0 {
			m.Observed[i] = 1
		}
		m.Ratio[i] = float64(m.Observed[i]) / float64(m.Expected[i]) * scale
	}
	return m
}

// WriteStats writes one "expected observed ratio" line per GC bucket.
func (m *GCModel) WriteStats(ctx context.Context, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "binning.GCModel.WriteStats", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	for i := 0; i < NumGCBuckets; i++ {
		w.WriteInt64(m.Expected[i])
		w.WriteInt64(m.Observed[i])
		w.WriteString(strconv.FormatFloat(m.Ratio[i], 'g', 7, 64))
		if err = w.EndLine(); err != nil {
			return errors.E(err, "binning.GCModel.WriteStats", path)
		}
	}
	return w.Flush()
}
