// Package coverage builds per-chromosome alignment coverage for binning.
//
// For each chromosome it keeps a PositionMask of bases that start unique
// k-mers (uppercase bases of the reference), a saturating HitTrack of
// alignment starts and a FragmentLengthTrack.  The map phase creates a
// ChromState per chromosome with ReadReference and NewChromStateFromSeq, fills it
// with ScanAlignments, then applies ExcludeRegions and Screen.  The merge
// phase collects the states into an Arena.
package coverage
