package coverage

import (
	"fmt"
	"sync"
)

// ChromState is the per-chromosome coverage state built by the map phase:
// the usable-position mask, the hit counts and the fragment lengths.  All
// three vectors have one element per reference base.
type ChromState struct {
	Name     string
	Mask     *PositionMask
	Hits     HitTrack
	FragLens FragmentLengthTrack
}

// NewChromState creates the state for a chromosome of n bases with an
// all-clear mask and zeroed tracks.
func NewChromState(name string, n int) *ChromState {
	return &ChromState{
		Name:     name,
		Mask:     NewPositionMask(n),
		Hits:     make(HitTrack, n),
		FragLens: make(FragmentLengthTrack, n),
	}
}

// NewChromStateFromSeq creates the state for a reference sequence.  The mask
// marks the uppercase bases of seq.
func NewChromStateFromSeq(name, seq string) *ChromState {
	return &ChromState{
		Name:     name,
		Mask:     NewPositionMaskFromSeq(seq),
		Hits:     make(HitTrack, len(seq)),
		FragLens: make(FragmentLengthTrack, len(seq)),
	}
}

// Len returns the chromosome length.
func (c *ChromState) Len() int { return c.Mask.Len() }

// Validate checks that all vectors have the chromosome's length.
func (c *ChromState) Validate() error {
	if c.Mask == nil {
		return fmt.Errorf("coverage: %s: missing position mask", c.Name)
	}
	n := c.Mask.Len()
	if len(c.Hits) != n || len(c.FragLens) != n {
		return fmt.Errorf("coverage: %s: length mismatch: mask %d, hits %d, fragment lengths %d",
			c.Name, n, len(c.Hits), len(c.FragLens))
	}
	return nil
}

// Screen zeroes the hits at positions that are not usable, so that no
// impossible hit is ever counted.
func (c *ChromState) Screen() {
	for pos := range c.Hits {
		if c.Hits[pos] != 0 && !c.Mask.Test(pos) {
			c.Hits[pos] = 0
		}
	}
}

// Arena owns the chromosome states assembled by the merge step, keyed by
// chromosome name.  Add is safe for concurrent use; the accessors must only be
// used once all Adds are done.
type Arena struct {
	mu     sync.Mutex
	names  []string
	chroms map[string]*ChromState
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{chroms: map[string]*ChromState{}}
}

// Add takes ownership of the given states.  Each chromosome may be added only
// once.  The lock is held only while the states are inserted.
func (a *Arena) Add(states ...*ChromState) error {
	for _, c := range states {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range states {
		if _, ok := a.chroms[c.Name]; ok {
			return fmt.Errorf("coverage.Arena.Add: chromosome %s added twice", c.Name)
		}
		a.chroms[c.Name] = c
		a.names = append(a.names, c.Name)
	}
	return nil
}

// Get returns the state of the named chromosome, or nil.
func (a *Arena) Get(name string) *ChromState {
	return a.chroms[name]
}

// Names lists the chromosomes in the order they were added.
func (a *Arena) Names() []string {
	return a.names
}

// Len returns the number of chromosomes.
func (a *Arena) Len() int {
	return len(a.names)
}

// MeanFragmentLength is the non-zero mean, over chromosomes, of each
// chromosome's non-zero mean fragment length.
func (a *Arena) MeanFragmentLength() int16 {
	means := make([]int16, 0, len(a.names))
	for _, name := range a.names {
		means = append(means, NonZeroMean(a.chroms[name].FragLens))
	}
	return NonZeroMean(means)
}
