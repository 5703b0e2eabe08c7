package binning

import (
	"github.com/grailbio/covbin/interval"
)

// DefaultExcludedBinFraction is the calibrated threshold of the excluded-bin
// filter: bins more than 10% covered by excluded regions are dropped.
const DefaultExcludedBinFraction = 0.1

// FilterExcludedBins returns the bins whose overlap with the regions of idx is
// at most fraction times the bin length.  bins is filtered in place.
func FilterExcludedBins(bins []GenomicBin, idx *interval.OverlapIndex, fraction float64) []GenomicBin {
	kept := bins[:0]
	for _, b := range bins {
		overlap := idx.OverlapLength(b.Chrom, b.Start, b.Stop)
		if float64(overlap) > fraction*float64(b.Len()) {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}
