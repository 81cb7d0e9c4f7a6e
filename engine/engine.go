package engine

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/sverker/memhist/region"
)

// AccessKind classifies an observed memory event.
type AccessKind int

const (
	// Read is a data load.
	Read AccessKind = iota
	// Write is a data store.
	Write
	// Exec is an instruction fetch.
	Exec
)

func (k AccessKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case Exec:
		return "exec"
	}
	return fmt.Sprintf("AccessKind(%d)", int(k))
}

// AccessMask is a set of access kinds.
type AccessMask uint32

const (
	// MaskRead enables observation of data loads.
	MaskRead AccessMask = 1 << Read
	// MaskWrite enables observation of data stores.
	MaskWrite AccessMask = 1 << Write
	// MaskExec enables observation of instruction fetches.
	MaskExec AccessMask = 1 << Exec
)

// DefaultEnabled is the access-kind set observed when none is configured.
const DefaultEnabled = MaskRead | MaskWrite

// Has reports whether k is in the mask.
func (m AccessMask) Has(k AccessKind) bool {
	return m&(1<<uint(k)) != 0
}

// ProtFlags returns the protection bits whose access kind is in m.
func (m AccessMask) ProtFlags() region.ProtFlags {
	var f region.ProtFlags
	if m.Has(Write) {
		f |= region.ForbidWrite
	}
	if m.Has(Read) {
		f |= region.ForbidRead
	}
	if m.Has(Exec) {
		f |= region.ForbidExec
	}
	return f
}

func (m AccessMask) String() string {
	b := make([]byte, 0, 3)
	if m.Has(Read) {
		b = append(b, 'R')
	}
	if m.Has(Write) {
		b = append(b, 'W')
	}
	if m.Has(Exec) {
		b = append(b, 'X')
	}
	return string(b)
}

// ParseAccessMask parses a subset of "RWX" into an AccessMask.
func ParseAccessMask(s string) (AccessMask, error) {
	var m AccessMask
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'R', 'r':
			m |= MaskRead
		case 'W', 'w':
			m |= MaskWrite
		case 'X', 'x':
			m |= MaskExec
		default:
			return 0, fmt.Errorf("engine.ParseAccessMask: bad access kind %q in %q", s[i], s)
		}
	}
	return m, nil
}

// Opts configures an Engine.
type Opts struct {
	// TraceMem logs every recorded write and region mutation to the user
	// stream.
	TraceMem bool
	// Enabled selects which access kinds the engine observes.  Protection
	// flags for kinds outside the set are silently filtered from client
	// requests.  Zero means DefaultEnabled.
	Enabled AccessMask
	// Context supplies the call-context handle stamped on history samples.
	// Nil records a placeholder context.
	Context func() region.CallContext
	// LoadMem reads the current size-byte memory content at addr, for
	// compare-and-swap dispatch.  Nil reads the host address space
	// directly.
	LoadMem func(addr region.Addr, size int) uint64
}

// Engine is the region engine.  One instance serves a whole run; it is
// not safe for concurrent use.
type Engine struct {
	opts  Opts
	store region.Store
	now   uint32
}

// New returns an engine with empty region store and logical time zero.
func New(opts Opts) *Engine {
	if opts.Enabled == 0 {
		opts.Enabled = DefaultEnabled
	}
	if opts.Context == nil {
		opts.Context = func() region.CallContext { return noContext{} }
	}
	if opts.LoadMem == nil {
		opts.LoadMem = rawLoad
	}
	return &Engine{opts: opts}
}

type noContext struct{}

func (noContext) String() string { return "    (call context unavailable)" }

// Enabled returns the access-kind set the engine observes.
func (e *Engine) Enabled() AccessMask { return e.opts.Enabled }

// Now returns the current logical time.
func (e *Engine) Now() uint32 { return e.now }

// tick returns the current logical time and advances the clock.
func (e *Engine) tick() uint32 {
	t := e.now
	e.now++
	return t
}

// RegisterTracking registers a write-tracking region over
// [addr, addr+size) with the given word granularity and ring depth.
// The request is dropped silently when write observation is disabled.
// Overlap with an existing region is a programming error.
func (e *Engine) RegisterTracking(addr region.Addr, size uint64, wordSize, history int, name string) {
	if !e.opts.Enabled.Has(Write) {
		return
	}
	if e.opts.TraceMem {
		log.Printf("TRACE: tracking %d-byte words from %#x to %#x with history %d",
			wordSize, addr, addr+region.Addr(size), history)
	}
	r := region.NewTracked(addr, size, wordSize, history, name, e.tick())
	e.store.InsertNonoverlapping(r)
}

// UnregisterTracking removes write tracking from the region registered
// over exactly [addr, addr+size).  The region is destroyed unless it
// still carries protection flags.  A missing or mismatched region is a
// programming error.
func (e *Engine) UnregisterTracking(addr region.Addr, size uint64) {
	end := addr + region.Addr(size)
	r := e.store.LookupMaxLE(addr)
	if r == nil || r.Start != addr || r.End != end {
		log.Panicf("engine: no region to untrack at [%#x, %#x)", addr, end)
	}
	if r.Flags&region.TrackWrites == 0 {
		log.Panicf("engine: region '%s' at [%#x, %#x) is not tracked", r.Name, addr, end)
	}
	if e.opts.TraceMem {
		log.Printf("TRACE: untracking '%s' from %#x to %#x", r.Name, addr, end)
	}
	r.Flags &^= region.TrackWrites
	if r.Flags == 0 {
		e.store.Remove(r)
	}
}

// SetEnabled gates the region registered over exactly [addr, addr+size).
// A missing region is a no-op: an unregister may have preceded.
func (e *Engine) SetEnabled(addr region.Addr, size uint64, enabled bool) {
	end := addr + region.Addr(size)
	r := e.store.LookupMaxLE(addr)
	if r == nil || r.Start != addr || r.End != end {
		return
	}
	if e.opts.TraceMem {
		verb := "disable"
		if enabled {
			verb = "enable"
		}
		log.Printf("TRACE: %s '%s' from %#x to %#x", verb, r.Name, addr, end)
	}
	r.Enabled = enabled
}
