package trace

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Writer emits events in the textual trace format Read accepts.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent writes one event as a trace line.
func (tw *Writer) WriteEvent(ev Event) error {
	var err error
	switch ev.Op {
	case OpTrack:
		_, err = fmt.Fprintf(tw.w, "track %#x %d %d %d %s\n",
			uint64(ev.Addr), ev.Size, ev.WordSize, ev.History, ev.Name)
	case OpUntrack, OpEnable, OpDisable:
		_, err = fmt.Fprintf(tw.w, "%v %#x %d\n", ev.Op, uint64(ev.Addr), ev.Size)
	case OpProtect:
		_, err = fmt.Fprintf(tw.w, "protect %#x %d %s %s\n",
			uint64(ev.Addr), ev.Size, ev.Name, flagLetters(ev.Flags))
	case OpUnprotect:
		_, err = fmt.Fprintf(tw.w, "unprotect %#x %d %s\n",
			uint64(ev.Addr), ev.Size, flagLetters(ev.Flags))
	case OpInstr, OpLoad:
		_, err = fmt.Fprintf(tw.w, "%v %#x %d\n", ev.Op, uint64(ev.Addr), ev.Size)
	case OpStore:
		_, err = fmt.Fprintf(tw.w, "store %#x %d %#x\n", uint64(ev.Addr), ev.Size, ev.Data)
	case OpCAS:
		_, err = fmt.Fprintf(tw.w, "cas %#x %d %#x %#x\n",
			uint64(ev.Addr), ev.Size, ev.Expected, ev.Data)
	default:
		return errors.Errorf("trace.WriteEvent: unknown op %v", ev.Op)
	}
	return err
}
