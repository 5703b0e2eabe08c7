package binning

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/covbin/coverage"
	"github.com/grailbio/covbin/interval"
	"gonum.org/v1/gonum/stat"
)

// IsAutosome reports whether name, after an optional case-insensitive "chr"
// prefix, is a positive integer.  Sex and mitochondrial chromosomes are not
// autosomes.
func IsAutosome(name string) bool {
	if len(name) >= 3 && strings.EqualFold(name[:3], "chr") {
		name = name[3:]
	}
	if name == "" || name[0] == '+' {
		return false
	}
	n, err := strconv.Atoi(name)
	return err == nil && n > 0
}

// median returns the median of vals, averaging the two middle values when
// len(vals) is even.  vals is sorted in place.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 0 {
		return (vals[n/2-1] + vals[n/2]) / 2
	}
	return vals[n/2]
}

// countRegions returns the number of positions with a hit and the number of
// usable positions of state, restricted to the given region endpoints unless
// endpoints is nil.
func countRegions(state *coverage.ChromState, endpoints []interval.PosType) (observed, possible int) {
	if endpoints == nil {
		return state.Hits.CountNonZero(), state.Mask.Count()
	}
	var start, end interval.PosType
	us := interval.NewUnionScanner(endpoints)
	for us.Scan(&start, &end, interval.PosType(state.Len())) {
		for pos := int(start); pos < int(end); pos++ {
			if state.Hits[pos] > 0 {
				observed++
			}
		}
		possible += state.Mask.CountRange(int(start), int(end))
	}
	return observed, possible
}

// PossibleCountPerBin converts the desired median hit count per bin into the
// number of usable positions per bin.  It takes the median, over autosomes, of
// the fraction of usable positions that have a hit; when targets is non-nil,
// only target positions count and autosomes without targets are skipped.
// Autosomes without usable positions are ignored.
func PossibleCountPerBin(countsPerBin int, arena *coverage.Arena, targets *interval.BEDUnion, parallelism int) (int, error) {
	var names []string
	for _, name := range arena.Names() {
		if !IsAutosome(name) {
			continue
		}
		if targets != nil && !targets.HasChr(name) {
			continue
		}
		names = append(names, name)
	}
	var (
		mu    sync.Mutex
		rates []float64
	)
	err := parallelFor(parallelism, len(names), func(i int) error {
		var endpoints []interval.PosType
		if targets != nil {
			endpoints = targets.Endpoints(names[i])
		}
		observed, possible := countRegions(arena.Get(names[i]), endpoints)
		if possible == 0 {
			log.Debug.Printf("%s: no usable positions, skipped", names[i])
			return nil
		}
		mu.Lock()
		rates = append(rates, float64(observed)/float64(possible))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(rates) == 0 {
		return 0, fmt.Errorf("binning.PossibleCountPerBin: no autosome with usable positions")
	}
	mean, std := stat.MeanStdDev(rates, nil)
	med := median(rates)
	log.Printf("Observation rate over %d autosomes: median %g, mean %g, stddev %g", len(rates), med, mean, std)
	if med == 0 {
		return 0, fmt.Errorf("binning.PossibleCountPerBin: median observation rate is 0 (no usable hits on autosomes)")
	}
	// Truncated toward zero, not rounded.
	return int(float64(countsPerBin) / med), nil
}
