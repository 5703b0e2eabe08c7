/*Package interval implements interval-union operations in a manner optimized
  for sets of genomic coordinates represented by BED files.
  Overlapping intervals are merged, not tracked separately; OverlapIndex
  answers per-bin overlap-length queries against such a union.
  It assumes every position fits in a PosType, which is currently defined as
  int32 since that's what BAM files are limited to.
*/
package interval
