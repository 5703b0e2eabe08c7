package coverage

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/covbin/encoding/fasta"
)

// Chromosome is one reference sequence.  Case is preserved: uppercase bases
// start unique k-mers.
type Chromosome struct {
	Name string
	Seq  string
}

// ReadReference reads the sequences of the FASTA file at path, in file order.
// If chrom is nonempty, only that sequence is read; when path+".fai" exists,
// the reader seeks to it directly.
func ReadReference(ctx context.Context, path, chrom string) (chroms []Chromosome, err error) {
	var opts []fasta.Opt
	if chrom != "" {
		opts = append(opts, fasta.OptSeqName(chrom))
	}
	fa, err := fasta.Open(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := fa.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	names := fa.SeqNames()
	if chrom != "" {
		names = []string{chrom}
	}
	for _, name := range names {
		seq, err := fasta.Seq(fa, name)
		if err != nil {
			return nil, errors.E(err, "coverage.ReadReference", path, name)
		}
		chroms = append(chroms, Chromosome{Name: name, Seq: seq})
	}
	log.Debug.Printf("coverage.ReadReference: %s: read %d sequence(s)", path, len(chroms))
	return chroms, nil
}
