package bamprovider

import (
	"github.com/grailbio/hts/sam"
)

// Provider hands out per-reference iterators over an alignment file. It is
// safe for concurrent use; iterators on different references may be active
// at the same time.
type Provider interface {
	// GetHeader returns the file header. The caller must not modify it.
	GetHeader() (*sam.Header, error)

	// NewIterator returns an iterator over the records aligned to ref, in file
	// order. A reference without reads yields an empty iterator.
	NewIterator(ref *sam.Reference) Iterator

	// Close releases the provider and returns the first error seen by it or
	// by any of its iterators.
	//
	// REQUIRES: all iterators have been closed.
	Close() error
}

// Iterator yields the records of one reference. It is not safe for
// concurrent use.
type Iterator interface {
	// Scan advances to the next record. It returns false at the end of the
	// reference or on error.
	Scan() bool

	// Record returns the current record. Valid only after Scan returned true.
	Record() *sam.Record

	// Err returns the error that stopped Scan, if any. Reaching the end of the
	// reference is not an error.
	Err() error

	// Close must be called exactly once. It returns Err().
	Close() error
}

// NewProvider creates a Provider for the BAM file at path. indexPath
// defaults to path + ".bai" when empty.
func NewProvider(path, indexPath string) Provider {
	return &BAMProvider{Path: path, Index: indexPath}
}
