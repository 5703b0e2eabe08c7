package fasta

import (
	"context"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// ReadCloser is a Fasta backed by an open file.
type ReadCloser interface {
	Fasta
	// Close releases the underlying file.  The Fasta must not be used
	// afterwards.
	Close(ctx context.Context) error
}

type fileFasta struct {
	Fasta
	in file.File
}

func (f *fileFasta) Close(ctx context.Context) error {
	if f.in == nil {
		return nil
	}
	err := f.in.Close(ctx)
	f.in = nil
	return err
}

// Open opens the FASTA file at path.  If path+".fai" exists, sequences are
// fetched through the index and nothing is read up front.  Otherwise the file
// (optionally compressed) is read into memory, honoring OptSeqName.
func Open(ctx context.Context, path string, optList ...Opt) (_ ReadCloser, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "fasta.Open", path)
	}
	idxPath := path + ".fai"
	if _, err := file.Stat(ctx, idxPath); err == nil {
		idxIn, err := file.Open(ctx, idxPath)
		if err != nil {
			_ = in.Close(ctx)
			return nil, errors.E(err, "fasta.Open", idxPath)
		}
		fa, err := NewIndexed(in.Reader(ctx), idxIn.Reader(ctx))
		if e := idxIn.Close(ctx); e != nil && err == nil {
			err = e
		}
		if err != nil {
			_ = in.Close(ctx)
			return nil, errors.E(err, "fasta.Open", idxPath)
		}
		log.Debug.Printf("fasta.Open: %s: using index %s", path, idxPath)
		return &fileFasta{Fasta: fa, in: in}, nil
	}

	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var fa Fasta
	if fa, err = New(reader, optList...); err != nil {
		return nil, errors.E(err, "fasta.Open", path)
	}
	return &fileFasta{Fasta: fa}, nil
}
