package engine

import (
	"fmt"
	"io"

	"github.com/sverker/memhist/region"
)

// WriteReport walks the region store in ascending address order and
// writes the shutdown report: the per-word write history of every
// tracking region, newest sample first, and a one-line summary for
// every protected range.
func (e *Engine) WriteReport(w io.Writer) error {
	var err error
	pr := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	e.store.Do(func(r *region.Region) bool {
		if r.Flags&region.TrackWrites != 0 {
			pr("Tracking '%s' from %#x to %#x with word size %d and history %d created at time %d.\n",
				r.Name, r.Start, r.End, r.WordSize, r.History, r.BirthTime)
			addr := r.Start
			for wix := 0; wix < r.NWords; wix++ {
				hist := r.WordHistory(wix)
				if len(hist) == 0 {
					pr("%d-bytes at %#x not written.\n", r.WordSize, addr)
				}
				for h, acc := range hist {
					if h == 0 {
						pr("%d-bytes %s written to address %#x at time %d:\n",
							r.WordSize, formatWord(r.WordSize, acc.Data), addr, acc.TimeStamp)
					} else {
						pr("       AND %s written at time %d:\n",
							formatWord(r.WordSize, acc.Data), acc.TimeStamp)
					}
					pr("%s\n", acc.CallStack)
				}
				addr += region.Addr(r.WordSize)
			}
		}
		if r.Flags&region.ForbidMask != 0 {
			pr("Region '%s' protected %v from %#x to %#x at time %d.\n",
				r.Name, r.Flags&region.ForbidMask, r.Start, r.End, r.ProtectTime)
		}
		return err != nil
	})
	return err
}

// formatWord renders a recorded value at the region's word width.
func formatWord(wordSize int, data uint64) string {
	switch wordSize {
	case 1:
		return fmt.Sprintf("%#x", uint8(data))
	case 2:
		return fmt.Sprintf("%#x", uint16(data))
	case 4:
		return fmt.Sprintf("%#x", uint32(data))
	default:
		return fmt.Sprintf("%#x", data)
	}
}
