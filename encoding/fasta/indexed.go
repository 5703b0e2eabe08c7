package fasta

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"sync"
)

// Index files consist of one tab-separated line per sequence in the associated
// FASTA file.  The format is: "<sequence name>\t<length>\t<byte
// offset>\t<bases per line>\t<bytes per line>".
// For example: "chr3\t12345\t9000\t80\t81".
var indexRegExp = regexp.MustCompile(`^(\S+)\t(\d+)\t(\d+)\t(\d+)\t(\d+)`)

// IndexEntry is one parsed line of a .fai file.
type IndexEntry struct {
	Name      string
	Length    uint64
	Offset    uint64
	LineBase  uint64
	LineWidth uint64
}

// ReadIndex parses a .fai file.  Entries are returned in file order.
func ReadIndex(index io.Reader) ([]IndexEntry, error) {
	var entries []IndexEntry
	scanner := bufio.NewScanner(index)
	for scanner.Scan() {
		matches := indexRegExp.FindStringSubmatch(scanner.Text())
		if len(matches) != 6 {
			return nil, fmt.Errorf("fasta.ReadIndex: invalid index line: %s", scanner.Text())
		}
		ent := IndexEntry{Name: matches[1]}
		ent.Length, _ = strconv.ParseUint(matches[2], 10, 64)
		ent.Offset, _ = strconv.ParseUint(matches[3], 10, 64)
		ent.LineBase, _ = strconv.ParseUint(matches[4], 10, 64)
		ent.LineWidth, _ = strconv.ParseUint(matches[5], 10, 64)
		if ent.LineBase == 0 && ent.Length > 0 {
			return nil, fmt.Errorf("fasta.ReadIndex: zero bases per line for %s", ent.Name)
		}
		if ent.LineWidth < ent.LineBase {
			return nil, fmt.Errorf("fasta.ReadIndex: line width smaller than line bases for %s", ent.Name)
		}
		entries = append(entries, ent)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

type indexedFasta struct {
	seqs     map[string]IndexEntry
	seqNames []string // in file order

	mu     sync.Mutex
	reader io.ReadSeeker
}

// NewIndexed creates a Fasta that reads sequence ranges from fasta on
// demand, locating them through the .fai index.  Only the rows spanned by a
// request are read, so one chromosome is fetched without scanning the
// records before it.
func NewIndexed(fasta io.ReadSeeker, index io.Reader) (Fasta, error) {
	entries, err := ReadIndex(index)
	if err != nil {
		return nil, err
	}
	f := &indexedFasta{seqs: make(map[string]IndexEntry, len(entries)), reader: fasta}
	for _, ent := range entries {
		f.seqs[ent.Name] = ent
		f.seqNames = append(f.seqNames, ent.Name)
	}
	sort.SliceStable(f.seqNames, func(i, j int) bool {
		return f.seqs[f.seqNames[i]].Offset < f.seqs[f.seqNames[j]].Offset
	})
	return f, nil
}

func (f *indexedFasta) entry(seqName string) (IndexEntry, error) {
	ent, ok := f.seqs[seqName]
	if !ok {
		return ent, fmt.Errorf("fasta: sequence %s not found in index", seqName)
	}
	return ent, nil
}

func (f *indexedFasta) Len(seqName string) (uint64, error) {
	ent, err := f.entry(seqName)
	return ent.Length, err
}

func (f *indexedFasta) SeqNames() []string { return f.seqNames }

// readRows reads n bytes at off.  The final row of the file may lack its
// newline, so a short read at EOF is returned as is.
func (f *indexedFasta) readRows(off int64, n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.reader.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(f.reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:got], nil
}

// Get reads the rows that hold [start, end) in one request and keeps the
// bases of each row, dropping the line terminators.
func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	ent, err := f.entry(seqName)
	if err != nil {
		return "", err
	}
	if end <= start {
		return "", fmt.Errorf("fasta: empty range [%d, %d) for %s", start, end, seqName)
	}
	if end > ent.Length {
		return "", fmt.Errorf("fasta: range end %d is past the length %d of %s", end, ent.Length, seqName)
	}
	firstRow, lastRow := start/ent.LineBase, (end-1)/ent.LineBase
	raw, err := f.readRows(int64(ent.Offset+firstRow*ent.LineWidth),
		int((lastRow-firstRow)*ent.LineWidth+ent.LineBase))
	if err != nil {
		return "", err
	}
	seq := make([]byte, 0, end-start)
	for row := firstRow; row <= lastRow; row++ {
		lo, hi := uint64(0), ent.LineBase
		if row == firstRow {
			lo = start % ent.LineBase
		}
		if row == lastRow {
			hi = (end-1)%ent.LineBase + 1
		}
		rowOff := (row - firstRow) * ent.LineWidth
		if rowOff+hi > uint64(len(raw)) {
			return "", fmt.Errorf("fasta: short read for %s:%d-%d, the index may be stale", seqName, start, end)
		}
		seq = append(seq, raw[rowOff+lo:rowOff+hi]...)
	}
	return string(seq), nil
}
