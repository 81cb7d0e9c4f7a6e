package region

import (
	"math"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/log"
)

// Store is an ordered set of disjoint regions keyed by start address.
// The zero value is an empty store.
type Store struct {
	tree llrb.Tree
}

// startKey lets address queries run against the tree without building a
// throwaway Region.
type startKey Addr

func startOf(c llrb.Comparable) Addr {
	switch v := c.(type) {
	case *Region:
		return v.Start
	case startKey:
		return Addr(v)
	}
	log.Panicf("region: unexpected tree element %T", c)
	return 0
}

func compareStarts(a, b Addr) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Compare orders regions by start address, for llrb.
func (r *Region) Compare(c llrb.Comparable) int {
	return compareStarts(r.Start, startOf(c))
}

func (k startKey) Compare(c llrb.Comparable) int {
	return compareStarts(Addr(k), startOf(c))
}

// Len returns the number of regions in the store.
func (s *Store) Len() int { return s.tree.Len() }

// Insert links r into the store.  It returns nil on success, or the
// already-present region with the same start address (r is not inserted).
func (s *Store) Insert(r *Region) *Region {
	if clash := s.tree.Get(r); clash != nil {
		return clash.(*Region)
	}
	s.tree.Insert(r)
	return nil
}

// InsertNonoverlapping links r and verifies disjointness against both
// neighbours.  Any overlap is a programming error: r is unlinked again
// and the call panics.
func (s *Store) InsertNonoverlapping(r *Region) {
	if clash := s.Insert(r); clash != nil {
		log.Panicf("region: insert of [%#x, %#x) clashes with [%#x, %#x)",
			r.Start, r.End, clash.Start, clash.End)
	}
	if p := s.Pred(r); p != nil && p.End > r.Start {
		s.Remove(r)
		log.Panicf("region: [%#x, %#x) overlaps predecessor [%#x, %#x)",
			r.Start, r.End, p.Start, p.End)
	}
	if n := s.Succ(r); n != nil && n.Start < r.End {
		s.Remove(r)
		log.Panicf("region: [%#x, %#x) overlaps successor [%#x, %#x)",
			r.Start, r.End, n.Start, n.End)
	}
}

// Remove unlinks r from the store.
func (s *Store) Remove(r *Region) {
	s.tree.Delete(r)
}

// Min returns the region with the smallest start address, or nil.
func (s *Store) Min() *Region {
	return asRegion(s.tree.Min())
}

// Succ returns the next region after r in start order, or nil.
func (s *Store) Succ(r *Region) *Region {
	return s.LookupMinG(r.Start)
}

// Pred returns the previous region before r in start order, or nil.
func (s *Store) Pred(r *Region) *Region {
	if r.Start == 0 {
		return nil
	}
	return asRegion(s.tree.Floor(startKey(r.Start - 1)))
}

// LookupMaxLE returns the region with the greatest start <= a, or nil.
func (s *Store) LookupMaxLE(a Addr) *Region {
	return asRegion(s.tree.Floor(startKey(a)))
}

// LookupMinGE returns the region with the smallest start >= a, or nil.
func (s *Store) LookupMinGE(a Addr) *Region {
	return asRegion(s.tree.Ceil(startKey(a)))
}

// LookupMinG returns the region with the smallest start > a, or nil.
func (s *Store) LookupMinG(a Addr) *Region {
	if a == math.MaxUint64 {
		return nil
	}
	return asRegion(s.tree.Ceil(startKey(a + 1)))
}

// Do walks the store in ascending start order, stopping early if fn
// returns true.
func (s *Store) Do(fn func(*Region) bool) {
	s.tree.Do(func(c llrb.Comparable) bool {
		return fn(c.(*Region))
	})
}

func asRegion(c llrb.Comparable) *Region {
	if c == nil {
		return nil
	}
	return c.(*Region)
}
