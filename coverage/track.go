package coverage

import (
	"math"
)

// HitTrack counts alignment starts per base.  Counts saturate at 255.
type HitTrack []byte

// Add records one more alignment start at pos.
func (h HitTrack) Add(pos int) {
	if h[pos] < math.MaxUint8 {
		h[pos]++
	}
}

// CountNonZero returns the number of positions with at least one hit.
func (h HitTrack) CountNonZero() int {
	n := 0
	for _, v := range h {
		if v > 0 {
			n++
		}
	}
	return n
}

// FragmentLengthTrack holds, per base, the fragment length of the read pair
// whose first mate starts there.  0 means none was observed.
type FragmentLengthTrack []int16

// ClampFragmentLength converts a template length to a track value in
// [0, math.MaxInt16].
func ClampFragmentLength(tlen int) int16 {
	if tlen < 0 {
		return 0
	}
	if tlen > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(tlen)
}

// NonZeroMean returns the integer mean of the positive values in vals, or 0
// if there are none.
func NonZeroMean(vals []int16) int16 {
	var sum, n int64
	for _, v := range vals {
		if v > 0 {
			sum += int64(v)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int16(sum / n)
}
