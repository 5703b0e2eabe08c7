package interval

import "math"

// PosType is the type used to represent interval coordinates.  int32 is wide
// enough since that's what BAM is limited to.
type PosType int32

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// UnionScanner walks the covered runs of an endpoint sequence, as returned by
// BEDUnion.Endpoints, in increasing order.  Successive calls to Scan may use
// increasing limits; a run cut by one limit resumes at the next call.
//
//   us := NewUnionScanner(u.Endpoints(chr))
//   var start, end PosType
//   for us.Scan(&start, &end, limit) {
//     for pos := start; pos < end; pos++ {
//       ...
//     }
//   }
type UnionScanner struct {
	// rest holds the endpoints not yet consumed. rest[0] is the start of the
	// current run, which may be past the endpoint originally listed.
	rest []PosType
}

// NewUnionScanner creates a scanner positioned at the first run.
func NewUnionScanner(endpoints []PosType) UnionScanner {
	rest := make([]PosType, len(endpoints)&^1)
	copy(rest, endpoints)
	return UnionScanner{rest: rest}
}

// Scan stores the next covered run below limit in [*start, *end) and reports
// whether there was one.
func (us *UnionScanner) Scan(start, end *PosType, limit PosType) bool {
	if len(us.rest) == 0 || us.rest[0] >= limit {
		return false
	}
	*start = us.rest[0]
	if us.rest[1] > limit {
		*end = limit
		us.rest[0] = limit
		return true
	}
	*end = us.rest[1]
	us.rest = us.rest[2:]
	return true
}
