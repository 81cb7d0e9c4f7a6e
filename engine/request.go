package engine

import (
	"unsafe"

	"github.com/grailbio/base/log"
	"github.com/sverker/memhist/region"
)

// requestBase is the tool's client-request code base ('M','H').
const requestBase uint32 = uint32('M')<<24 | uint32('H')<<16

// Client request codes, assigned densely from the tool base.
const (
	ReqTrackMemWrite uint32 = requestBase + iota
	ReqUntrackMemWrite
	ReqTrackEnable
	ReqTrackDisable
	ReqSetProtection
	ReqClearProtection
)

// IsToolRequest reports whether code lies in this tool's request range.
func IsToolRequest(code uint32) bool {
	return code&0xffff0000 == requestBase
}

// HandleClientRequest decodes one client request issued by the
// instrumented program.  args[0] is the request code and args[1:] carry
// up to five word arguments.  It returns true when the request was
// recognised and handled; unknown codes in the tool's range emit a
// warning and return false so the host can report them.
func (e *Engine) HandleClientRequest(args *[6]uintptr) bool {
	code := uint32(args[0])
	if !IsToolRequest(code) {
		return false
	}
	switch code {
	case ReqTrackMemWrite:
		e.RegisterTracking(region.Addr(args[1]), uint64(args[2]),
			int(args[3]), int(args[4]), goString(args[5]))
	case ReqUntrackMemWrite:
		e.UnregisterTracking(region.Addr(args[1]), uint64(args[2]))
	case ReqTrackEnable:
		e.SetEnabled(region.Addr(args[1]), uint64(args[2]), true)
	case ReqTrackDisable:
		e.SetEnabled(region.Addr(args[1]), uint64(args[2]), false)
	case ReqSetProtection:
		e.SetProtection(region.Addr(args[1]), uint64(args[2]),
			goString(args[3]), region.ProtFlags(args[4]))
	case ReqClearProtection:
		e.ClearProtection(region.Addr(args[1]), uint64(args[2]),
			region.ProtFlags(args[3]))
	default:
		log.Error.Printf("unknown memhist client request code %#x", code)
		return false
	}
	return true
}

// goString copies the NUL-terminated string at p out of the guest
// address space.  Names are copied on ingest, so the guest need not
// keep them alive past the request.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = *(*byte)(unsafe.Pointer(p + uintptr(i)))
	}
	return string(b)
}
