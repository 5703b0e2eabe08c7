package bamprovider

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// RefByName finds a sam.Reference with the given name. It returns nil if a
// reference is not found.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}

// RefNames lists the reference names of h, in header order.
func RefNames(h *sam.Header) []string {
	names := make([]string, 0, len(h.Refs()))
	for _, ref := range h.Refs() {
		names = append(names, ref.Name())
	}
	return names
}

// NewRefIterator creates an iterator over all records aligned to refName.
// An unknown reference name is reported through the iterator's Err.
func NewRefIterator(p Provider, refName string) Iterator {
	h, err := p.GetHeader()
	if err != nil {
		return NewErrorIterator(err)
	}
	ref := RefByName(h, refName)
	if ref == nil {
		return NewErrorIterator(fmt.Errorf("bamprovider.NewRefIterator: unable to retrieve the reference sequence index for %s", refName))
	}
	return p.NewIterator(ref)
}

// errorIterator yields nothing. A nil err makes it an empty iterator.
type errorIterator struct{ err error }

func (i errorIterator) Scan() bool          { return false }
func (i errorIterator) Record() *sam.Record { panic("bamprovider: Record called on an empty iterator") }
func (i errorIterator) Err() error          { return i.err }
func (i errorIterator) Close() error        { return i.err }

// NewErrorIterator creates an Iterator that yields no records and reports err
// from Err and Close.
func NewErrorIterator(err error) Iterator { return errorIterator{err} }
