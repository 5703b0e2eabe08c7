package coverage

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/covbin/interval"
)

// ExcludeRegions clears the mask bits of state that fall inside regions.
// Regions past the end of the chromosome are clipped.
func ExcludeRegions(state *ChromState, regions *interval.BEDUnion) {
	endpoints := regions.Endpoints(state.Name)
	for i := 0; i+1 < len(endpoints); i += 2 {
		start, end := int(endpoints[i]), int(endpoints[i+1])
		if end > state.Len() {
			log.Error.Printf("%s: excluded region [%d, %d) extends past the chromosome length %d",
				state.Name, start, end, state.Len())
		}
		state.Mask.ClearRange(start, end)
	}
}
