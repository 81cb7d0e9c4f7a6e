package engine

import (
	"unsafe"

	"github.com/grailbio/base/log"
	"github.com/sverker/memhist/region"
)

// OnAccess processes one observed memory access of size bytes at addr.
// data is the stored value widened to 64 bits for writes, ignored
// otherwise.  Covering regions are visited in ascending start order;
// the first violation short-circuits the walk.  The return value is
// the fault flag the instrumented code branches on.
func (e *Engine) OnAccess(kind AccessKind, addr region.Addr, size int, data uint64) bool {
	end := addr + region.Addr(size)
	r := e.store.LookupMaxLE(addr)
	if r == nil || addr >= r.End {
		return false
	}
	var hit, fault bool
	for r != nil && end > r.Start {
		if addr >= r.End {
			log.Panicf("engine: access [%#x, %#x) does not overlap region [%#x, %#x)",
				addr, end, r.Start, r.End)
		}
		if r.Enabled {
			hit = true
			switch {
			case kind == Write && r.Flags&region.ForbidWrite != 0,
				kind == Read && r.Flags&region.ForbidRead != 0,
				kind == Exec && r.Flags&region.ForbidExec != 0:
				log.Printf("Provoking SEGV: forbidden %v of %d bytes in region '%s' at addr %#x at time %d",
					kind, size, r.Name, addr, e.now)
				fault = true
			case kind == Write && r.Flags&region.TrackWrites != 0:
				e.recordWrite(r, addr, size, data)
			}
		}
		if fault || end <= r.End {
			break
		}
		r = e.store.Succ(r)
	}
	if hit {
		e.now++
	}
	return fault
}

// OnCAS processes an observed compare-and-swap.  The current memory
// content at addr is read; the access counts as a write of data only
// when the content equals expected, and is a no-op otherwise.
func (e *Engine) OnCAS(addr region.Addr, size int, expected, data uint64) bool {
	switch size {
	case 1, 2, 4, 8:
	default:
		log.Panicf("engine: CAS on %d-byte words not implemented", size)
	}
	if size < 8 {
		if expected>>(8*uint(size)) != 0 {
			log.Panicf("engine: CAS expected=%#x wider than %d bytes", expected, size)
		}
		if data>>(8*uint(size)) != 0 {
			log.Panicf("engine: CAS data=%#x wider than %d bytes", data, size)
		}
	}
	if e.opts.LoadMem(addr, size) != expected {
		return false
	}
	return e.OnAccess(Write, addr, size, data)
}

func (e *Engine) recordWrite(r *region.Region, addr region.Addr, size int, data uint64) {
	ctx := e.opts.Context()
	if e.opts.TraceMem {
		log.Printf("TRACE: %d bytes written at addr %#x at time %d:\n%s",
			size, addr, e.now, ctx)
	}
	r.RecordWrite(ctx, e.now, addr, size, data)
}

// rawLoad reads the tool's own address space.  The instrumented program
// shares it, so a plain load observes the current guest memory content.
func rawLoad(addr region.Addr, size int) uint64 {
	p := unsafe.Pointer(uintptr(addr))
	switch size {
	case 1:
		return uint64(*(*uint8)(p))
	case 2:
		return uint64(*(*uint16)(p))
	case 4:
		return uint64(*(*uint32)(p))
	default:
		return *(*uint64)(p)
	}
}
