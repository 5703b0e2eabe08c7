// Package binstate reads and writes intermediate coverage state files.
//
// A map step stores the coverage.ChromState of one or more chromosomes in a
// recordio file; a later merge step reads them back.  Each chromosome is one
// record holding the bit-packed position mask, the hit track and the fragment
// length track, followed by a seahash checksum.  The files are not a stable
// format: they are only read by the same version of the program that wrote
// them.
package binstate
