// Package bamprovider provides utilities for scanning an indexed BAM file one
// reference at a time.
//
// The Provider is an interface that hands out per-reference Iterators.
// Several iterators may be active concurrently, so different chromosomes of
// the same file can be read in parallel.
package bamprovider
