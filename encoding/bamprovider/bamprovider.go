package bamprovider

import (
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for a coordinate-sorted, indexed BAM file.
// Path and Index may name anything grailbio/base/file can open, including S3
// objects.
//
// The header and the index are read once and shared by all iterators. Each
// active iterator owns a BAM reader; readers are pooled and reused after their
// iterator is closed.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the path of the *.bam.bai file. If "", Path + ".bai".
	Index string

	// err accumulates every error seen by the provider and its iterators.
	err errors.Once

	indexOnce sync.Once
	index     *bam.Index
	indexErr  error

	mu      sync.Mutex
	header  *sam.Header
	active  int
	readers []*bamReader
}

// bamReader is an open BAM file positioned anywhere.
type bamReader struct {
	in file.File
	r  *bam.Reader
}

func (r *bamReader) close() error {
	err := r.r.Close()
	if cerr := r.in.Close(vcontext.Background()); err == nil {
		err = cerr
	}
	return err
}

// IndexPath returns the path of the BAM index.
func (b *BAMProvider) IndexPath() string {
	if b.Index == "" {
		return b.Path + ".bai"
	}
	return b.Index
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	b.header = r.Header()
	return b.header, r.Close()
}

func (b *BAMProvider) loadIndex() (*bam.Index, error) {
	b.indexOnce.Do(func() {
		ctx := vcontext.Background()
		path := b.IndexPath()
		if _, err := file.Stat(ctx, path); err != nil {
			b.indexErr = fmt.Errorf("bamprovider: BAM index not found at %s: %v", path, err)
			return
		}
		in, err := file.Open(ctx, path)
		if err != nil {
			b.indexErr = err
			return
		}
		defer in.Close(ctx) // nolint: errcheck
		b.index, b.indexErr = bam.ReadIndex(in.Reader(ctx))
	})
	return b.index, b.indexErr
}

// getReader takes a reader from the pool, or opens a new one.
func (b *BAMProvider) getReader() (*bamReader, error) {
	b.mu.Lock()
	b.active++
	if n := len(b.readers); n > 0 {
		rd := b.readers[n-1]
		b.readers = b.readers[:n-1]
		b.mu.Unlock()
		return rd, nil
	}
	b.mu.Unlock()

	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.Path)
	if err == nil {
		var r *bam.Reader
		if r, err = bam.NewReader(in.Reader(ctx), 1); err == nil {
			return &bamReader{in: in, r: r}, nil
		}
		in.Close(ctx) // nolint: errcheck
	}
	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	return nil, err
}

// putReader returns rd to the pool. A reader whose iterator failed is closed
// instead, since its position is unknown.
func (b *BAMProvider) putReader(rd *bamReader, iterErr error) {
	if iterErr != nil {
		b.err.Set(iterErr)
		b.err.Set(rd.close())
		rd = nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if rd != nil {
		b.readers = append(b.readers, rd)
	}
	b.active--
	if b.active < 0 {
		vlog.Fatalf("bamprovider: negative active iterator count for %s", b.Path)
	}
}

func (b *BAMProvider) fail(err error) Iterator {
	b.err.Set(err)
	return NewErrorIterator(err)
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(ref *sam.Reference) Iterator {
	if ref == nil {
		return b.fail(fmt.Errorf("bamprovider.NewIterator: nil reference"))
	}
	idx, err := b.loadIndex()
	if err != nil {
		return b.fail(err)
	}
	chunks, err := idx.Chunks(ref, 0, ref.Len())
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		vlog.VI(1).Infof("%s: no indexed reads on %s", b.Path, ref.Name())
		return NewErrorIterator(nil)
	}
	if err != nil {
		return b.fail(err)
	}
	rd, err := b.getReader()
	if err != nil {
		return b.fail(err)
	}
	vlog.VI(1).Infof("%s: reading %s from offset %+v", b.Path, ref.Name(), chunks[0].Begin)
	if err := rd.r.Seek(chunks[0].Begin); err != nil {
		b.putReader(rd, err)
		return NewErrorIterator(err)
	}
	return &bamIterator{provider: b, rd: rd, refID: ref.ID()}
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active > 0 {
		vlog.Fatalf("bamprovider: %d iterators still active for %s", b.active, b.Path)
	}
	for _, rd := range b.readers {
		b.err.Set(rd.close())
	}
	b.readers = nil
	return b.err.Err()
}

// bamIterator reads the records of one reference, starting at the first chunk
// the index lists for it.
type bamIterator struct {
	provider *BAMProvider
	rd       *bamReader
	refID    int

	rec    *sam.Record
	done   bool
	err    error
	closed bool
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if i.closed {
		vlog.Fatal("bamprovider: Scan called on a closed iterator")
	}
	if i.done || i.err != nil {
		return false
	}
	rec, err := i.rd.r.Read()
	if err == io.EOF {
		i.done = true
		return false
	}
	if err != nil {
		i.err = err
		return false
	}
	if rec.Ref == nil || rec.Ref.ID() != i.refID {
		// Unmapped reads and the next reference follow the records of refID.
		i.done = true
		return false
	}
	i.rec = rec
	return true
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record { return i.rec }

// Err implements the Iterator interface.
func (i *bamIterator) Err() error { return i.err }

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	if i.closed {
		vlog.Fatal("bamprovider: iterator closed twice")
	}
	i.closed = true
	i.provider.putReader(i.rd, i.err)
	i.rd = nil
	return i.err
}
