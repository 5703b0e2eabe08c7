package bamprovider

import (
	"github.com/grailbio/hts/sam"
)

// fakeProvider serves records from memory, for tests.
type fakeProvider struct {
	header *sam.Header
	byRef  map[int][]*sam.Record
}

// NewFakeProvider creates a Provider that returns header, and for each
// reference the records of recs aligned to it, in the order given. Records
// are not checked for sort order. Unmapped records are never returned.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	p := &fakeProvider{header: header, byRef: map[int][]*sam.Record{}}
	for _, r := range recs {
		if r.Ref != nil {
			p.byRef[r.Ref.ID()] = append(p.byRef[r.Ref.ID()], r)
		}
	}
	return p
}

func (p *fakeProvider) GetHeader() (*sam.Header, error) { return p.header, nil }

func (p *fakeProvider) Close() error { return nil }

func (p *fakeProvider) NewIterator(ref *sam.Reference) Iterator {
	return &sliceIterator{recs: p.byRef[ref.ID()], i: -1}
}

type sliceIterator struct {
	recs []*sam.Record
	i    int
}

func (it *sliceIterator) Scan() bool {
	it.i++
	return it.i < len(it.recs)
}

// Record returns a copy, so the code under test cannot modify the test input.
func (it *sliceIterator) Record() *sam.Record {
	r := sam.GetFromFreePool()
	*r = *it.recs[it.i]
	return r
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }
