package trace

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/sverker/memhist/engine"
	"github.com/sverker/memhist/region"
	"v.io/x/lib/vlog"
)

// Replayer drives an engine from a decoded trace.  Compare-and-swap
// loads read a shadow memory that the trace's own stores populate, so
// a replay observes the memory the traced program saw rather than the
// replaying process's.
type Replayer struct {
	eng *Engine
	mem map[region.Addr]byte
	seq int
}

type Engine = engine.Engine

// eventContext is the synthetic call context stamped on samples during
// replay: the position of the current event in the trace.
type eventContext struct {
	seq int
}

func (c eventContext) String() string {
	return fmt.Sprintf("    at trace event #%d", c.seq)
}

// NewReplayer builds an engine wired for replay.  The opts' Context and
// LoadMem hooks are overridden.
func NewReplayer(opts engine.Opts) *Replayer {
	r := &Replayer{mem: make(map[region.Addr]byte)}
	opts.Context = func() region.CallContext { return eventContext{seq: r.seq} }
	opts.LoadMem = func(addr region.Addr, size int) uint64 { return r.load(addr, size) }
	r.eng = engine.New(opts)
	return r
}

// Engine returns the replayer's engine, for the final report.
func (r *Replayer) Engine() *Engine { return r.eng }

// Run applies all events in order and returns the number of accesses
// that faulted.
func (r *Replayer) Run(events []Event) (faults int) {
	for i, ev := range events {
		if r.Apply(i, ev) {
			faults++
		}
	}
	return faults
}

// Apply applies one event.  seq is the event's position in the trace;
// it becomes the call context of any sample the event records.  The
// return value is the access fault flag; requests never fault.
func (r *Replayer) Apply(seq int, ev Event) (fault bool) {
	r.seq = seq
	switch ev.Op {
	case OpTrack:
		r.request(engine.ReqTrackMemWrite, ev.Name,
			uintptr(ev.Addr), uintptr(ev.Size), uintptr(ev.WordSize), uintptr(ev.History))
	case OpUntrack:
		r.request(engine.ReqUntrackMemWrite, "", uintptr(ev.Addr), uintptr(ev.Size), 0, 0)
	case OpEnable:
		r.request(engine.ReqTrackEnable, "", uintptr(ev.Addr), uintptr(ev.Size), 0, 0)
	case OpDisable:
		r.request(engine.ReqTrackDisable, "", uintptr(ev.Addr), uintptr(ev.Size), 0, 0)
	case OpProtect:
		r.request(engine.ReqSetProtection, ev.Name,
			uintptr(ev.Addr), uintptr(ev.Size), 0, uintptr(ev.Flags))
	case OpUnprotect:
		r.request(engine.ReqClearProtection, "",
			uintptr(ev.Addr), uintptr(ev.Size), uintptr(ev.Flags), 0)
	case OpInstr:
		fault = r.eng.OnAccess(engine.Exec, ev.Addr, int(ev.Size), 0)
	case OpLoad:
		fault = r.eng.OnAccess(engine.Read, ev.Addr, int(ev.Size), 0)
	case OpStore:
		fault = r.eng.OnAccess(engine.Write, ev.Addr, int(ev.Size), ev.Data)
		if !fault {
			r.store(ev.Addr, int(ev.Size), ev.Data)
		}
	case OpCAS:
		matched := r.load(ev.Addr, int(ev.Size)) == ev.Expected
		fault = r.eng.OnCAS(ev.Addr, int(ev.Size), ev.Expected, ev.Data)
		if matched && !fault {
			r.store(ev.Addr, int(ev.Size), ev.Data)
		}
	default:
		vlog.Errorf("trace: skipping unknown event op %v", ev.Op)
	}
	return fault
}

// request issues a client request the way an instrumented program
// would: through the tagged demultiplexer, with the name passed as a
// pointer to a NUL-terminated buffer.  The positional args land in the
// slots the request code expects.
func (r *Replayer) request(code uint32, name string, a1, a2, a3, a4 uintptr) {
	var args [6]uintptr
	args[0] = uintptr(code)
	args[1], args[2], args[3], args[4] = a1, a2, a3, a4
	var nameBuf []byte
	if name != "" {
		nameBuf = append([]byte(name), 0)
		p := uintptr(unsafe.Pointer(&nameBuf[0]))
		switch code {
		case engine.ReqTrackMemWrite:
			args[5] = p
		case engine.ReqSetProtection:
			args[3] = p
		}
	}
	if !r.eng.HandleClientRequest(&args) {
		vlog.Errorf("trace: client request %#x not handled", code)
	}
	runtime.KeepAlive(nameBuf)
}

// load assembles a little-endian value from shadow memory; bytes never
// stored read as zero.
func (r *Replayer) load(addr region.Addr, size int) uint64 {
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(r.mem[addr+region.Addr(i)])
	}
	return v
}

func (r *Replayer) store(addr region.Addr, size int, data uint64) {
	for i := 0; i < size; i++ {
		r.mem[addr+region.Addr(i)] = byte(data >> (8 * uint(i)))
	}
}
