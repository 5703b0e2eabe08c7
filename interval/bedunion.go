package interval

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
)

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).  Target manifests use
	// this convention.
	OneBasedInput bool
}

// Entry represents a single interval, with 0-based coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

// BEDUnion stores, per chromosome, the sorted endpoints of disjoint
// intervals: interval #k starts (0-based) at element [2k] and ends at element
// [2k+1].  It is immutable once built and safe for concurrent reads.
type BEDUnion struct {
	// nameMap is a chromosome-keyed map with disjoint-interval-set values.
	// Always initialized.
	nameMap map[string][]PosType
	// chrNames lists the keys of nameMap in order of first appearance.
	chrNames []string
}

// HasChr reports whether chrName was mentioned in the input, even if only by
// empty intervals.
func (u *BEDUnion) HasChr(chrName string) bool {
	_, ok := u.nameMap[chrName]
	return ok
}

// ChrNames returns the chromosomes mentioned in the input, in order of first
// appearance.
func (u *BEDUnion) ChrNames() []string {
	return u.chrNames
}

// Endpoints returns the sorted interval endpoints of chrName, in the
// representation described on BEDUnion.  The result must not be modified.
func (u *BEDUnion) Endpoints(chrName string) []PosType {
	return u.nameMap[chrName]
}

// Entries returns the disjoint intervals of chrName, sorted by position.
func (u *BEDUnion) Entries(chrName string) []Entry {
	endpoints := u.nameMap[chrName]
	entries := make([]Entry, 0, len(endpoints)/2)
	for i := 0; i+1 < len(endpoints); i += 2 {
		entries = append(entries, Entry{ChrName: chrName, Start0: endpoints[i], End: endpoints[i+1]})
	}
	return entries
}

// NBases returns the number of bases covered by the union.
func (u *BEDUnion) NBases() int {
	n := 0
	for _, endpoints := range u.nameMap {
		for i := 0; i+1 < len(endpoints); i += 2 {
			n += int(endpoints[i+1] - endpoints[i])
		}
	}
	return n
}

// NewBEDUnionFromEntries initializes a BEDUnion from a []Entry.  The entries
// need not be sorted; touching and overlapping intervals are merged and
// empty ones dropped.
func NewBEDUnionFromEntries(entries []Entry) (bedUnion BEDUnion, err error) {
	byChr := map[string][]Entry{}
	bedUnion.nameMap = map[string][]PosType{}
	for _, entry := range entries {
		if entry.Start0 < 0 {
			err = fmt.Errorf("interval.NewBEDUnionFromEntries: negative start coordinate on %s", entry.ChrName)
			return
		}
		if (entry.End < entry.Start0) || (entry.End >= PosTypeMax) {
			err = fmt.Errorf("interval.NewBEDUnionFromEntries: invalid coordinate pair %s:[%d, %d)",
				entry.ChrName, entry.Start0, entry.End)
			return
		}
		if _, ok := byChr[entry.ChrName]; !ok {
			bedUnion.chrNames = append(bedUnion.chrNames, entry.ChrName)
		}
		byChr[entry.ChrName] = append(byChr[entry.ChrName], entry)
	}
	for _, chrName := range bedUnion.chrNames {
		chrEntries := byChr[chrName]
		sort.SliceStable(chrEntries, func(i, j int) bool {
			return chrEntries[i].Start0 < chrEntries[j].Start0
		})
		chrIntervals := []PosType{}
		for _, entry := range chrEntries {
			if entry.End == entry.Start0 {
				continue
			}
			if n := len(chrIntervals); n > 0 && entry.Start0 <= chrIntervals[n-1] {
				// Intervals overlap or touch, merge them.
				if entry.End > chrIntervals[n-1] {
					chrIntervals[n-1] = entry.End
				}
				continue
			}
			chrIntervals = append(chrIntervals, entry.Start0, entry.End)
		}
		bedUnion.nameMap[chrName] = chrIntervals
	}
	return
}

// NewBEDUnion loads the intervals from the first three columns of a BED file,
// merging touching/overlapping intervals and eliminating empty ones in the
// process.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	var startSubtract int
	if opts.OneBasedInput {
		startSubtract++
	}
	var entries []Entry
	s := NewBEDScanner(reader, 3)
	for s.Scan() {
		if s.NToken() != 3 {
			err = fmt.Errorf("interval.NewBEDUnion: line %d has fewer tokens than expected", s.Line())
			return
		}
		var parsedStart, parsedEnd int
		if parsedStart, err = strconv.Atoi(gunsafe.BytesToString(s.Token(1))); err != nil {
			return
		}
		parsedStart -= startSubtract
		if parsedStart < 0 {
			err = fmt.Errorf("interval.NewBEDUnion: negative start coordinate %s on line %d", s.Token(1), s.Line())
			return
		}
		if parsedEnd, err = strconv.Atoi(gunsafe.BytesToString(s.Token(2))); err != nil {
			return
		}
		if (parsedEnd < parsedStart) || (parsedEnd >= PosTypeMax) {
			err = fmt.Errorf("interval.NewBEDUnion: invalid coordinate pair on line %d", s.Line())
			return
		}
		entries = append(entries, Entry{
			// Copy the name, since the token refers to the scanner's buffer.
			ChrName: string(s.Token(0)),
			Start0:  PosType(parsedStart),
			End:     PosType(parsedEnd),
		})
	}
	if err = s.Err(); err != nil {
		return
	}
	if bedUnion, err = NewBEDUnionFromEntries(entries); err != nil {
		return
	}
	log.Printf("BED loaded, %d base(s) covered.", bedUnion.NBases())
	return
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader.  Gzipped files are accepted.
func NewBEDUnionFromPath(ctx context.Context, path string, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	var in io.ReadCloser
	if in, err = OpenBED(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return NewBEDUnion(in, opts)
}
