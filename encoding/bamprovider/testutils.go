package bamprovider

import (
	"bytes"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// NewRecord creates a mapped record for tests.  The record gets a sequence as
// long as the query length of cigar and a mapping quality of 60.
func NewRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference, cigar sam.Cigar) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MatePos = matePos
	r.MateRef = mateRef
	r.Flags = flags
	r.Cigar = cigar
	r.MapQ = 60
	_, readLen := cigar.Lengths()
	r.Seq = sam.NewSeq(bytes.Repeat([]byte{'A'}, readLen))
	return r
}

// WriteIndexedBAM writes recs to a BAM file at path, and its index to
// path+".bai".  The records must be sorted by coordinate.
func WriteIndexedBAM(path string, header *sam.Header, recs []*sam.Record) error {
	ctx := vcontext.Background()
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	bw, err := bam.NewWriter(out.Writer(ctx), header, 1)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := bw.Write(r); err != nil {
			return err
		}
	}
	if err := bw.Close(); err != nil {
		return err
	}
	if err := out.Close(ctx); err != nil {
		return err
	}

	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer in.Close(ctx) // nolint: errcheck
	br, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return err
	}
	var bai bam.Index
	for {
		r, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := bai.Add(r, br.LastChunk()); err != nil {
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	indexOut, err := file.Create(ctx, path+".bai")
	if err != nil {
		return err
	}
	if err := bam.WriteIndex(indexOut.Writer(ctx), &bai); err != nil {
		return err
	}
	return indexOut.Close(ctx)
}
