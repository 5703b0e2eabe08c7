package fasta

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// GenerateIndex generates an index (*.fai) from FASTA.  The index can be later
// passed to NewIndexed() to random-access the FASTA file quickly.
//
// The index format is defined by "samtool faidx"
// (http://www.htslib.org/doc/faidx.html).
func GenerateIndex(out io.Writer, in io.Reader) error {
	entries, err := scanIndexEntries(in)
	if err != nil {
		return err
	}
	w := tsv.NewWriter(out)
	for _, ent := range entries {
		w.WriteString(ent.Name)
		w.WriteInt64(int64(ent.Length))
		w.WriteInt64(int64(ent.Offset))
		w.WriteInt64(int64(ent.LineBase))
		w.WriteInt64(int64(ent.LineWidth))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// scanIndexEntries computes the .fai entries of a FASTA stream.  The line
// geometry of each sequence is taken from its first line.
func scanIndexEntries(in io.Reader) ([]IndexEntry, error) {
	var (
		r       = bufio.NewReader(in)
		entries []IndexEntry
		cur     *IndexEntry
		cumByte int64
	)
	for {
		fullLine, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		cumByte += int64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		switch {
		case len(line) == 0:
		case line[0] == '>':
			name := strings.Split(string(line[1:]), " ")[0]
			if name == "" {
				return nil, errors.E("malformed FASTA file")
			}
			entries = append(entries, IndexEntry{Name: name, Offset: uint64(cumByte)})
			cur = &entries[len(entries)-1]
		case cur == nil:
			return nil, errors.E("malformed FASTA file: bases before the first header")
		default:
			if cur.LineWidth == 0 {
				cur.LineWidth = uint64(len(fullLine))
				cur.LineBase = uint64(len(line))
			}
			cur.Length += uint64(len(line))
		}
		if err == io.EOF {
			break
		}
	}
	if cumByte == 0 {
		return nil, errors.E("empty FASTA file")
	}
	return entries, nil
}
