package binning

import (
	"fmt"
	"math"
	"strings"
)

// Mode selects how the per-position hit counts of a bin are aggregated into
// the bin count.
type Mode int

const (
	// ModeBinary counts the positions with at least one hit.
	ModeBinary Mode = iota
	// ModeTruncatedDynamicRange sums the hits, each position capped at
	// maxHitsPerPosition.
	ModeTruncatedDynamicRange
	// ModeGCContentWeighted caps the hits of each position at
	// maxHitsPerPosition, divides them by the GC correction ratio of the
	// position, and rounds the total.
	ModeGCContentWeighted
	// ModeFragment counts read-pair fragments against predefined bins.
	ModeFragment
)

// maxHitsPerPosition caps the contribution of one position in the truncated
// and GC-weighted modes.
const maxHitsPerPosition = 10

var modeNames = map[string]Mode{
	"binary":                ModeBinary,
	"0":                     ModeBinary,
	"truncateddynamicrange": ModeTruncatedDynamicRange,
	"3":                     ModeTruncatedDynamicRange,
	"gccontentweighted":     ModeGCContentWeighted,
	"5":                     ModeGCContentWeighted,
	"fragment":              ModeFragment,
}

// ParseMode parses a mode name, case insensitively.  The numeric aliases 0, 3
// and 5 are also accepted.
func ParseMode(s string) (Mode, error) {
	m, ok := modeNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("binning.ParseMode: unknown coverage mode %q", s)
	}
	return m, nil
}

func (m Mode) String() string {
	switch m {
	case ModeBinary:
		return "binary"
	case ModeTruncatedDynamicRange:
		return "truncateddynamicrange"
	case ModeGCContentWeighted:
		return "gccontentweighted"
	case ModeFragment:
		return "fragment"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// aggregator computes a bin count from the hit counts of the bin's usable
// positions and, in parallel, the GC correction ratio of each position.
type aggregator func(hits []byte, ratios []float64) int

// aggregator returns the aggregation rule of m.  It returns nil for
// ModeFragment, which is not produced by the per-base walk.
func (m Mode) aggregator() aggregator {
	switch m {
	case ModeBinary:
		return sumBinary
	case ModeTruncatedDynamicRange:
		return sumTruncated
	case ModeGCContentWeighted:
		return sumGCWeighted
	}
	return nil
}

// needsRatios is true if the aggregator reads the ratios argument.
func (m Mode) needsRatios() bool { return m == ModeGCContentWeighted }

func sumBinary(hits []byte, _ []float64) int {
	n := 0
	for _, v := range hits {
		if v > 0 {
			n++
		}
	}
	return n
}

func sumTruncated(hits []byte, _ []float64) int {
	n := 0
	for _, v := range hits {
		if v > maxHitsPerPosition {
			v = maxHitsPerPosition
		}
		n += int(v)
	}
	return n
}

func sumGCWeighted(hits []byte, ratios []float64) int {
	var total float64
	for i, v := range hits {
		if v > maxHitsPerPosition {
			v = maxHitsPerPosition
		}
		total += float64(v) / ratios[i]
	}
	return int(math.RoundToEven(total))
}
