// Package region implements the ordered store of tracked memory regions
// and the per-word circular write-history kept by tracking regions.
//
// A Region is a half-open byte range [Start, End) of the instrumented
// program's address space.  Regions in a Store are pairwise disjoint;
// the store is keyed by Start and supports predecessor/successor and
// max-le/min-gt address lookups, all O(log N).
package region
