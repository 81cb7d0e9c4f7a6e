package engine

import (
	"github.com/grailbio/base/log"
	"github.com/sverker/memhist/region"
)

// SetProtection ORs flags into every byte of [start, start+size),
// creating, extending and splitting regions as needed.  Flags for
// access kinds outside the enabled set are silently dropped.  Tracking
// regions are never split: flags are applied to them additively.
func (e *Engine) SetProtection(start region.Addr, size uint64, name string, flags region.ProtFlags) {
	flags &= e.opts.Enabled.ProtFlags()
	if flags == 0 {
		return
	}
	end := start + region.Addr(size)
	if e.opts.TraceMem {
		log.Printf("TRACE: protect %v '%s' from %#x to %#x", flags, name, start, end)
	}

	// The walk holds a two-state cursor: inRegion means the cursor sits
	// inside or at the start of r; otherwise it sits in a gap and r is
	// the first region past it, if any.
	cursor := start
	r := e.store.LookupMaxLE(start)
	inRegion := false
	switch {
	case r == nil:
		r = e.store.LookupMinG(start)
	case r.End < start, r.End == start && r.Flags != flags:
		r = e.store.Succ(r)
	default:
		inRegion = true
	}

	for {
		if !inRegion {
			if r == nil || r.Start > end {
				e.insertProtected(cursor, end, name, flags)
				break
			}
			if r.Flags == flags {
				// Extend r backward over the gap.  The key changes, so
				// relink.
				e.store.Remove(r)
				r.Start = cursor
				e.store.InsertNonoverlapping(r)
				inRegion = true
				continue
			}
			if cursor < r.Start {
				e.insertProtected(cursor, r.Start, name, flags)
			}
			cursor = r.Start
			if cursor >= end {
				break
			}
			inRegion = true
			continue
		}

		// Inside r: r.Start <= cursor <= r.End.
		if r.Flags&region.TrackWrites != 0 {
			e.orFlags(r, flags)
			if r.End >= end {
				break
			}
			cursor = r.End
			r = e.store.Succ(r)
			inRegion = r != nil && r.Start == cursor
			continue
		}
		if r.End > end {
			if flags&^r.Flags == 0 {
				break
			}
			tail := region.NewProtected(end, r.End, r.Name, r.Flags, e.tick())
			r.End = end
			e.orFlags(r, flags)
			e.store.InsertNonoverlapping(tail)
			break
		}
		if r.Flags == flags {
			next := e.store.Succ(r)
			if next == nil || next.Start > end {
				r.End = end
				break
			}
			if next.Flags == flags {
				// Absorb the successor and keep going.
				r.End = next.End
				e.store.Remove(next)
				if r.End >= end {
					break
				}
				continue
			}
			r.End = next.Start
			cursor = next.Start
			r = next
			if cursor >= end {
				break
			}
			continue
		}
		e.orFlags(r, flags)
		if r.End >= end {
			break
		}
		cursor = r.End
		r = e.store.Succ(r)
		inRegion = r != nil && r.Start == cursor
	}

	e.normalize(start, end)
}

// ClearProtection removes flags from every byte of [start, start+size),
// splitting regions at the range boundaries and destroying regions whose
// mask becomes empty.  Tracking regions lose flags only when the range
// covers them whole.
func (e *Engine) ClearProtection(start region.Addr, size uint64, flags region.ProtFlags) {
	if flags&region.TrackWrites != 0 {
		log.Panicf("engine: ClearProtection cannot clear tracking")
	}
	flags &= e.opts.Enabled.ProtFlags()
	if flags == 0 {
		return
	}
	end := start + region.Addr(size)
	if e.opts.TraceMem {
		log.Printf("TRACE: unprotect %v from %#x to %#x", flags, start, end)
	}

	// A region straddling start from the left is split at start; when the
	// range ends inside it, at end as well.
	if r := e.store.LookupMaxLE(start); r != nil && r.Start < start && r.End > start && r.Flags&flags != 0 {
		if r.Flags&region.TrackWrites != 0 {
			log.Printf("warning: not clearing %v from partially covered tracking region '%s'",
				flags, r.Name)
		} else {
			oldEnd, oldFlags := r.End, r.Flags
			r.End = start
			mid := oldEnd
			if mid > end {
				mid = end
			}
			if res := oldFlags &^ flags; res != 0 {
				e.insertProtected(start, mid, r.Name, res)
			}
			if oldEnd > end {
				e.insertProtected(end, oldEnd, r.Name, oldFlags)
			}
		}
	}

	r := e.store.LookupMinGE(start)
	for r != nil && r.Start < end {
		next := e.store.Succ(r)
		if r.Flags&flags != 0 {
			switch {
			case r.Flags&region.TrackWrites != 0:
				if r.End <= end {
					r.Flags &^= flags
				} else {
					log.Printf("warning: not clearing %v from partially covered tracking region '%s'",
						flags, r.Name)
				}
			case r.End > end:
				tail := region.NewProtected(end, r.End, r.Name, r.Flags, e.tick())
				r.End = end
				if nf := r.Flags &^ flags; nf != 0 {
					r.Flags = nf
				} else {
					e.store.Remove(r)
				}
				e.store.InsertNonoverlapping(tail)
			default:
				if nf := r.Flags &^ flags; nf != 0 {
					r.Flags = nf
				} else {
					e.store.Remove(r)
				}
			}
		}
		r = next
	}

	e.normalize(start, end)
}

func (e *Engine) insertProtected(start, end region.Addr, name string, flags region.ProtFlags) *region.Region {
	r := region.NewProtected(start, end, name, flags, e.tick())
	e.store.InsertNonoverlapping(r)
	return r
}

// orFlags adds flags to r, stamping the protection time when anything
// new was set.
func (e *Engine) orFlags(r *region.Region, flags region.ProtFlags) {
	if flags&^r.Flags == 0 {
		return
	}
	r.Flags |= flags
	r.ProtectTime = e.tick()
}

// normalize merges adjacent same-mask neighbours around [start, end].
// Tracking regions never participate.
func (e *Engine) normalize(start, end region.Addr) {
	r := e.store.LookupMaxLE(start)
	if r == nil {
		r = e.store.Min()
	} else if p := e.store.Pred(r); p != nil {
		r = p
	}
	for r != nil && r.Start <= end {
		next := e.store.Succ(r)
		if next == nil {
			break
		}
		if r.End == next.Start && r.Flags == next.Flags && r.Flags&region.TrackWrites == 0 {
			r.End = next.End
			e.store.Remove(next)
			continue
		}
		r = next
	}
}
