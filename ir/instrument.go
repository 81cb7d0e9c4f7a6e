package ir

import (
	"github.com/grailbio/base/log"
	"github.com/sverker/memhist/engine"
	"github.com/sverker/memhist/region"
)

// dirtyData is the placeholder value recorded for writes whose data is
// not visible to the shim (dirty helpers).
const dirtyData = 0xdead

// Instrumented is a basic block with engine callbacks attached ahead of
// its memory-touching statements.
type Instrumented struct {
	ops []op
}

type op struct {
	// events run before the original statement; a true return is a
	// protection fault.
	events []func() bool
	st     Stmt
}

// Len returns the number of statements in the block.
func (b *Instrumented) Len() int { return len(b.ops) }

// Run executes the block's event hooks in statement order.  It returns
// false when a hook signals a fault: the rest of the block is
// abandoned, the way the generated code branches to its SIGSEGV exit.
func (b *Instrumented) Run() bool {
	for _, o := range b.ops {
		for _, ev := range o.events {
			if ev() {
				return false
			}
		}
	}
	return true
}

// Instrument attaches engine callbacks to every memory-touching
// statement of blk, gated by the engine's enabled access kinds.  All
// other statements pass through unchanged.
func Instrument(blk *Block, eng *engine.Engine) *Instrumented {
	enabled := eng.Enabled()
	out := &Instrumented{ops: make([]op, 0, len(blk.Stmts))}
	for _, st := range blk.Stmts {
		var evs []func() bool
		switch st := st.(type) {
		case IMark:
			if enabled.Has(engine.Exec) {
				evs = append(evs, accessEvent(eng, engine.Exec, st.Addr, st.Len, 0))
			}
		case WrTmp:
			if st.Load != nil && enabled.Has(engine.Read) {
				evs = append(evs, accessEvent(eng, engine.Read, st.Load.Addr, st.Load.Size, 0))
			}
		case Store:
			if enabled.Has(engine.Write) {
				evs = append(evs, accessEvent(eng, engine.Write, st.Addr, st.Size, st.Data))
			}
		case Dirty:
			if st.Fx == FxRead || st.Fx == FxModify {
				if enabled.Has(engine.Read) {
					evs = append(evs, accessEvent(eng, engine.Read, st.Addr, st.Size, 0))
				}
			}
			if st.Fx == FxWrite || st.Fx == FxModify {
				if enabled.Has(engine.Write) {
					evs = append(evs, accessEvent(eng, engine.Write, st.Addr, st.Size, dirtyData))
				}
			}
		case CAS:
			size, expd, data := st.Size, st.ExpdLo, st.DataLo
			if st.Double {
				if size*2 > 8 {
					log.Panicf("ir: doubleword CAS with size %d not implemented", size*2)
				}
				expd = st.ExpdHi<<(8*uint(size)) | st.ExpdLo
				data = st.DataHi<<(8*uint(size)) | st.DataLo
				size *= 2
			}
			if enabled.Has(engine.Read) {
				evs = append(evs, accessEvent(eng, engine.Read, st.Addr, size, 0))
			}
			if enabled.Has(engine.Write) {
				evs = append(evs, casEvent(eng, st.Addr, size, expd, data))
			}
		case LLSC:
			if st.StoreData == nil {
				if enabled.Has(engine.Read) {
					evs = append(evs, accessEvent(eng, engine.Read, st.Addr, st.Size, 0))
				}
			} else if enabled.Has(engine.Write) {
				// The shim cannot tell whether the store-conditional
				// succeeded, so it is modelled as an unconditional write.
				evs = append(evs, accessEvent(eng, engine.Write, st.Addr, st.Size, *st.StoreData))
			}
		}
		out.ops = append(out.ops, op{events: evs, st: st})
	}
	return out
}

func accessEvent(eng *engine.Engine, kind engine.AccessKind, addr region.Addr, size int, data uint64) func() bool {
	return func() bool { return eng.OnAccess(kind, addr, size, data) }
}

func casEvent(eng *engine.Engine, addr region.Addr, size int, expd, data uint64) func() bool {
	return func() bool { return eng.OnCAS(addr, size, expd, data) }
}
