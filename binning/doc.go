// Package binning turns per-chromosome coverage state into GC-annotated
// genomic bins.
//
// Run drives one invocation.  In map mode it builds the state of a single
// chromosome (see package coverage) and writes it with package binstate.  In
// merge mode it reads the state files of all chromosomes into a
// coverage.Arena, derives the bin size from the desired median count
// (PossibleCountPerBin), fits the GC model (GCModel) and walks each
// chromosome, either closing a bin every BinSize usable positions or filling
// in predefined bins.  Single-pass mode does both in one process.  Fragment
// mode bypasses the per-base state and counts read-pair fragments into
// predefined bins directly from the BAM.
//
// Bins are written as "chrom start stop count gc" lines by WriteBins.
package binning
