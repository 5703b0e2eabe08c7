package interval

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		// Simple loops beat the standard library split functions for the handful
		// of columns a BED line has.
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// BEDScanner reads the leading columns of a BED-like file line by line.
// Blank lines and lines starting with '#', "track" or "browser" are skipped.
//
// Example:
//   s := NewBEDScanner(r, 4)
//   for s.Scan() {
//     chr, start := s.Token(0), s.Token(1)
//     ...
//   }
//   if err := s.Err(); err != nil { ... }
type BEDScanner struct {
	scanner *bufio.Scanner
	tokens  [][]byte
	nToken  int
	lineIdx int
}

// NewBEDScanner creates a scanner that saves up to maxTokens columns of each
// line.
func NewBEDScanner(r io.Reader, maxTokens int) *BEDScanner {
	return &BEDScanner{
		scanner: bufio.NewScanner(r),
		tokens:  make([][]byte, maxTokens),
	}
}

var (
	trackPrefix   = []byte("track")
	browserPrefix = []byte("browser")
)

// Scan advances to the next data line.  It returns false at EOF or on error.
func (s *BEDScanner) Scan() bool {
	for s.scanner.Scan() {
		s.lineIdx++
		line := s.scanner.Bytes()
		if len(line) > 0 && line[0] == '#' ||
			bytes.HasPrefix(line, trackPrefix) || bytes.HasPrefix(line, browserPrefix) {
			continue
		}
		if s.nToken = getTokens(s.tokens, line); s.nToken == 0 {
			continue
		}
		return true
	}
	return false
}

// NToken returns the number of columns saved for the current line.
func (s *BEDScanner) NToken() int { return s.nToken }

// Token returns column i of the current line.  The slice is only valid until
// the next call to Scan.
//
// REQUIRES: i < NToken().
func (s *BEDScanner) Token(i int) []byte { return s.tokens[i] }

// Line returns the 1-based line number of the current line.
func (s *BEDScanner) Line() int { return s.lineIdx }

// Err returns the I/O error encountered by Scan, if any.
func (s *BEDScanner) Err() error { return s.scanner.Err() }

type bedReader struct {
	io.Reader
	ctx context.Context
	in  file.File
	gz  *gzip.Reader
}

func (r *bedReader) Close() error {
	var err error
	if r.gz != nil {
		err = r.gz.Close()
	}
	if e := r.in.Close(r.ctx); e != nil && err == nil {
		err = e
	}
	return err
}

// OpenBED opens a BED-like text file.  Files whose name marks them as gzip
// compressed are decompressed on the fly.
func OpenBED(ctx context.Context, path string) (io.ReadCloser, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "interval.OpenBED", path)
	}
	r := &bedReader{Reader: in.Reader(ctx), ctx: ctx, in: in}
	if fileio.DetermineType(path) == fileio.Gzip {
		if r.gz, err = gzip.NewReader(r.Reader); err != nil {
			_ = in.Close(ctx)
			return nil, errors.E(err, "interval.OpenBED", path)
		}
		r.Reader = r.gz
	}
	return r, nil
}
