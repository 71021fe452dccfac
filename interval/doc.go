/*Package interval implements interval-union operations in a manner optimized
  for sets of genomic coordinates represented by BED files.
  (Note the 'union'.  Overlapping intervals are merged, not tracked
  separately.)
  A BEDUnion is used to restrict or exclude count-table regions, e.g. to a
  set of chromosomes or away from blacklisted loci.
  It assumes every position fits in a PosType, which is currently defined as
  int32; larger query coordinates saturate.
*/
package interval
