// Package trace reads and writes replayable memory-event traces.  A
// trace is the serialised form of the event stream the host framework
// would deliver: client requests interleaved with observed accesses.
// The replayer drives an engine from it, backing compare-and-swap loads
// with a shadow memory fed by the trace's own stores.
package trace

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/pkg/errors"
	"github.com/sverker/memhist/engine"
	"github.com/sverker/memhist/region"
	"v.io/x/lib/vlog"
)

// Op identifies one trace event kind.
type Op int

const (
	// OpTrack registers a write-tracking region.
	OpTrack Op = iota
	// OpUntrack removes write tracking.
	OpUntrack
	// OpEnable and OpDisable gate a region.
	OpEnable
	OpDisable
	// OpProtect and OpUnprotect mutate protection flags over a range.
	OpProtect
	OpUnprotect
	// OpInstr is an instruction fetch, OpLoad a data read, OpStore a
	// data write, OpCAS a compare-and-swap.
	OpInstr
	OpLoad
	OpStore
	OpCAS
)

var opNames = [...]string{
	OpTrack:     "track",
	OpUntrack:   "untrack",
	OpEnable:    "enable",
	OpDisable:   "disable",
	OpProtect:   "protect",
	OpUnprotect: "unprotect",
	OpInstr:     "instr",
	OpLoad:      "load",
	OpStore:     "store",
	OpCAS:       "cas",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "op?"
}

// Event is one decoded trace line.
type Event struct {
	Op       Op
	Addr     region.Addr
	Size     uint64
	WordSize int
	History  int
	Name     string
	Flags    region.ProtFlags
	Expected uint64
	Data     uint64
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters
// <= ' ' is treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// argCount is the expected token count per op, including the op token.
var argCount = map[string]int{
	"track":     6,
	"untrack":   3,
	"enable":    3,
	"disable":   3,
	"protect":   5,
	"unprotect": 4,
	"instr":     3,
	"load":      3,
	"store":     4,
	"cas":       5,
}

// Read decodes a trace from reader.  Blank lines and lines starting
// with '#' are skipped.  Numbers are decimal or 0x-prefixed hex.
func Read(reader io.Reader) (events []Event, err error) {
	scanner := bufio.NewScanner(reader)
	lineIdx := 0
	var tokens [6][]byte
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 || tokens[0][0] == '#' {
			continue
		}
		op := gunsafe.BytesToString(tokens[0])
		want, known := argCount[op]
		if !known {
			return nil, errors.Errorf("trace.Read: line %d: unknown op %q", lineIdx, op)
		}
		if nToken != want {
			return nil, errors.Errorf("trace.Read: line %d: %s expects %d fields, got %d",
				lineIdx, op, want, nToken)
		}
		ev, err := parseEvent(tokens[:nToken])
		if err != nil {
			return nil, errors.Wrapf(err, "trace.Read: line %d", lineIdx)
		}
		events = append(events, ev)
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	vlog.VI(1).Infof("trace loaded, %d event(s)", len(events))
	return events, nil
}

func parseEvent(tokens [][]byte) (ev Event, err error) {
	num := func(i int) uint64 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = strconv.ParseUint(gunsafe.BytesToString(tokens[i]), 0, 64)
		return v
	}
	switch gunsafe.BytesToString(tokens[0]) {
	case "track":
		ev = Event{Op: OpTrack, Addr: region.Addr(num(1)), Size: num(2),
			WordSize: int(num(3)), History: int(num(4)), Name: string(tokens[5])}
	case "untrack":
		ev = Event{Op: OpUntrack, Addr: region.Addr(num(1)), Size: num(2)}
	case "enable":
		ev = Event{Op: OpEnable, Addr: region.Addr(num(1)), Size: num(2)}
	case "disable":
		ev = Event{Op: OpDisable, Addr: region.Addr(num(1)), Size: num(2)}
	case "protect":
		ev = Event{Op: OpProtect, Addr: region.Addr(num(1)), Size: num(2),
			Name: string(tokens[3])}
		ev.Flags, err = parseFlags(string(tokens[4]))
	case "unprotect":
		ev = Event{Op: OpUnprotect, Addr: region.Addr(num(1)), Size: num(2)}
		ev.Flags, err = parseFlags(string(tokens[3]))
	case "instr":
		ev = Event{Op: OpInstr, Addr: region.Addr(num(1)), Size: num(2)}
	case "load":
		ev = Event{Op: OpLoad, Addr: region.Addr(num(1)), Size: num(2)}
	case "store":
		ev = Event{Op: OpStore, Addr: region.Addr(num(1)), Size: num(2), Data: num(3)}
	case "cas":
		ev = Event{Op: OpCAS, Addr: region.Addr(num(1)), Size: num(2),
			Expected: num(3), Data: num(4)}
	}
	return ev, err
}

func parseFlags(s string) (region.ProtFlags, error) {
	mask, err := engine.ParseAccessMask(s)
	if err != nil {
		return 0, err
	}
	return mask.ProtFlags(), nil
}

func flagLetters(f region.ProtFlags) string {
	var b strings.Builder
	if f&region.ForbidRead != 0 {
		b.WriteByte('R')
	}
	if f&region.ForbidWrite != 0 {
		b.WriteByte('W')
	}
	if f&region.ForbidExec != 0 {
		b.WriteByte('X')
	}
	return b.String()
}
