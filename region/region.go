package region

import (
	"github.com/grailbio/base/log"
)

// Addr is a byte address in the instrumented program's address space.
type Addr uint64

// ProtFlags is a bitmask of per-region protection and tracking bits.
type ProtFlags uint32

const (
	// ForbidWrite raises a violation on any write into the region.
	ForbidWrite ProtFlags = 1 << iota
	// ForbidRead raises a violation on any read from the region.
	ForbidRead
	// ForbidExec raises a violation on instruction fetch from the region.
	ForbidExec
	// TrackWrites records a history sample for each word written.
	TrackWrites
)

// ForbidMask is the subset of ProtFlags that forbids accesses.  These are
// the only bits the client protection requests may carry.
const ForbidMask = ForbidWrite | ForbidRead | ForbidExec

func (f ProtFlags) String() string {
	if f == 0 {
		return "-"
	}
	b := make([]byte, 0, 4)
	if f&ForbidWrite != 0 {
		b = append(b, 'W')
	}
	if f&ForbidRead != 0 {
		b = append(b, 'R')
	}
	if f&ForbidExec != 0 {
		b = append(b, 'X')
	}
	if f&TrackWrites != 0 {
		b = append(b, 'T')
	}
	return string(b)
}

// CallContext is an opaque handle to a captured guest call stack.  Handles
// are supplied by the host framework and are immutable once recorded.
type CallContext interface {
	String() string
}

// Access is one recorded write sample: who wrote (call stack), when
// (logical time), and what (the written value, widened to 64 bits).
type Access struct {
	CallStack CallContext
	TimeStamp uint32
	Data      uint64
}

// Region is a half-open byte range [Start, End) with a protection mask
// and, when Flags contains TrackWrites, a per-word write-history matrix.
type Region struct {
	Start Addr
	End   Addr
	// Name is the label supplied at registration; used only for reporting.
	Name string
	// BirthTime is the logical time the region was created.
	BirthTime uint32
	// ProtectTime is the logical time protection flags were last added.
	ProtectTime uint32
	// Enabled gates the region: when false it is inert but retained.
	Enabled bool
	Flags   ProtFlags

	// WordSize is the history granularity in bytes (1, 2, 4 or 8).
	WordSize int
	// NWords is ceil((End-Start)/WordSize), the matrix column count.
	NWords int
	// History is the ring depth, the matrix row count.
	History int

	// headIx[w] points one past the newest sample of word w.
	headIx []uint32
	// matrix is the History x NWords sample store; the samples of word w
	// occupy matrix[w*History : (w+1)*History].
	matrix []Access
}

// NewTracked allocates a tracking region over [start, start+size) with the
// given word granularity and ring depth.  The head vector and all matrix
// cells start zeroed.
func NewTracked(start Addr, size uint64, wordSize, history int, name string, birth uint32) *Region {
	switch wordSize {
	case 1, 2, 4, 8:
	default:
		log.Panicf("region: unsupported word size %d", wordSize)
	}
	if size == 0 || history < 1 {
		log.Panicf("region: bad tracking shape size=%d history=%d", size, history)
	}
	nwords := int((size + uint64(wordSize) - 1) / uint64(wordSize))
	return &Region{
		Start:     start,
		End:       start + Addr(size),
		Name:      name,
		BirthTime: birth,
		Enabled:   true,
		Flags:     TrackWrites,
		WordSize:  wordSize,
		NWords:    nwords,
		History:   history,
		headIx:    make([]uint32, nwords),
		matrix:    make([]Access, history*nwords),
	}
}

// NewProtected allocates a protection-only region over [start, end).
func NewProtected(start, end Addr, name string, flags ProtFlags, birth uint32) *Region {
	if end <= start {
		log.Panicf("region: empty protection range [%#x, %#x)", start, end)
	}
	if flags&^ForbidMask != 0 {
		log.Panicf("region: bad protection flags %v", flags)
	}
	return &Region{
		Start:       start,
		End:         end,
		Name:        name,
		BirthTime:   birth,
		ProtectTime: birth,
		Enabled:     true,
		Flags:       flags,
	}
}

// Covers reports whether a lies inside the region.
func (r *Region) Covers(a Addr) bool {
	return a >= r.Start && a < r.End
}
