// Package fasta reads reference sequences from (optionally indexed) FASTA
// files.  See http://www.htslib.org/doc/faidx.html.  FASTA files consist of a
// number of named sequences that may be interrupted by newlines:
//
// >chr7
// ACGTac
// GAGGAC
// gcg
// >chr8
// ACGT
//
// Sequence names are the stretch of characters excluding spaces immediately
// after '>'; '>chr1 A viral sequence' becomes 'chr1'.
//
// Bases are returned exactly as stored.  Reference files used for coverage
// binning encode k-mer uniqueness in the case of each base, so no
// normalization is ever applied.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// maxLineSize bounds a single FASTA line.  Sequences are normally wrapped, but
// some references store each chromosome on one line.
const maxLineSize = 300 << 20

// Fasta is a set of named sequences.  Implementations are safe for
// concurrent use.
type Fasta interface {
	// Get returns the bases of seqName in the 0-based range [start, end).
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the number of bases of seqName.
	Len(seqName string) (uint64, error)

	// SeqNames lists the sequence names in file order.
	SeqNames() []string
}

type opts struct {
	seqName string
}

// Opt is an option for New and Open.
type Opt func(*opts)

// OptSeqName restricts the reader to the named sequence.  A sequential reader
// skips the bases of all other sequences and stops reading once the named
// sequence is complete.
func OptSeqName(name string) Opt {
	return func(o *opts) { o.seqName = name }
}

func makeOpts(optList []Opt) opts {
	var o opts
	for _, fn := range optList {
		fn(&o)
	}
	return o
}

type fasta struct {
	seqs     map[string]string
	seqNames []string
}

// New creates a new Fasta that holds the FASTA data from the given reader in
// memory.
func New(r io.Reader, optList ...Opt) (Fasta, error) {
	o := makeOpts(optList)
	f := &fasta{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, maxLineSize)
	var (
		seqName string
		seq     strings.Builder
		started bool
	)
	keep := func(name string) bool { return o.seqName == "" || o.seqName == name }
	flush := func() {
		if started && keep(seqName) {
			f.seqs[seqName] = seq.String()
			f.seqNames = append(f.seqNames, seqName)
		}
		seq.Reset()
	}
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			if o.seqName != "" && len(f.seqNames) > 0 {
				// The requested sequence is complete.
				return f, nil
			}
			seqName = strings.Split(line[1:], " ")[0]
			if seqName == "" {
				return nil, errors.Errorf("malformed FASTA file: empty sequence name")
			}
			started = true
			continue
		}
		if !started {
			return nil, errors.Errorf("malformed FASTA file: bases before the first header")
		}
		if keep(seqName) {
			seq.WriteString(strings.TrimRight(line, "\r"))
		}
	}
	if scanner.Err() != nil {
		return nil, errors.Wrap(scanner.Err(), "couldn't read FASTA data")
	}
	flush()
	if o.seqName != "" && len(f.seqNames) == 0 {
		return nil, errors.Errorf("fasta: sequence %s not found", o.seqName)
	}
	return f, nil
}

func (f *fasta) seq(seqName string) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("fasta: sequence %s not found", seqName)
	}
	return s, nil
}

func (f *fasta) Get(seqName string, start, end uint64) (string, error) {
	s, err := f.seq(seqName)
	switch {
	case err != nil:
		return "", err
	case end <= start:
		return "", errors.Errorf("fasta: empty range [%d, %d) for %s", start, end, seqName)
	case end > uint64(len(s)):
		return "", errors.Errorf("fasta: range end %d is past the length %d of %s", end, len(s), seqName)
	}
	return s[start:end], nil
}

func (f *fasta) Len(seqName string) (uint64, error) {
	s, err := f.seq(seqName)
	return uint64(len(s)), err
}

func (f *fasta) SeqNames() []string { return f.seqNames }

// Seq returns the full sequence seqName.  Empty sequences are returned as "".
func Seq(f Fasta, seqName string) (string, error) {
	n, err := f.Len(seqName)
	if err != nil || n == 0 {
		return "", err
	}
	return f.Get(seqName, 0, n)
}
