package ir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
	"github.com/sverker/memhist/engine"
	"github.com/sverker/memhist/region"
)

type stack string

func (s stack) String() string { return string(s) }

func newEngine(enabled engine.AccessMask, mem func(region.Addr, int) uint64) *engine.Engine {
	return engine.New(engine.Opts{
		Enabled: enabled,
		Context: func() region.CallContext { return stack("    at test") },
		LoadMem: mem,
	})
}

func report(t *testing.T, eng *engine.Engine) string {
	var buf bytes.Buffer
	expect.NoError(t, eng.WriteReport(&buf))
	return buf.String()
}

func TestInstrumentEmitsGatedEvents(t *testing.T) {
	eng := newEngine(engine.MaskRead|engine.MaskWrite|engine.MaskExec, nil)
	eng.RegisterTracking(0x1000, 16, 8, 4, "buf")

	blk := &Block{Stmts: []Stmt{
		IMark{Addr: 0x500, Len: 4},
		WrTmp{Load: &Load{Addr: 0x1000, Size: 8}},
		WrTmp{},
		Store{Addr: 0x1000, Size: 8, Data: 7},
		NoOp{},
	}}
	ib := Instrument(blk, eng)
	expect.EQ(t, len(blk.Stmts), ib.Len())
	expect.True(t, ib.Run())
	// The load and the store each hit the tracked region; the fetch at
	// 0x500 missed.
	expect.EQ(t, uint32(3), eng.Now())
	expect.True(t, strings.Contains(report(t, eng), "0x7 written to address 0x1000"))
}

func TestInstrumentRespectsDisabledKinds(t *testing.T) {
	eng := newEngine(engine.MaskWrite, nil)
	eng.RegisterTracking(0x1000, 16, 8, 4, "buf")

	blk := &Block{Stmts: []Stmt{
		IMark{Addr: 0x1000, Len: 4},
		WrTmp{Load: &Load{Addr: 0x1000, Size: 8}},
	}}
	ib := Instrument(blk, eng)
	expect.True(t, ib.Run())
	expect.EQ(t, uint32(1), eng.Now())
}

func TestFaultAbortsBlock(t *testing.T) {
	eng := newEngine(0, nil)
	eng.RegisterTracking(0x1000, 16, 8, 4, "buf")
	eng.SetProtection(0x2000, 16, "ro", region.ForbidWrite)

	blk := &Block{Stmts: []Stmt{
		Store{Addr: 0x2000, Size: 4, Data: 1},
		Store{Addr: 0x1000, Size: 8, Data: 2},
	}}
	ib := Instrument(blk, eng)
	expect.False(t, ib.Run())
	// The violation ticked the clock once; the second store never ran.
	expect.EQ(t, uint32(3), eng.Now())
	expect.False(t, strings.Contains(report(t, eng), "0x2 written"))
}

func TestDoublewordCAS(t *testing.T) {
	eng := newEngine(0, func(addr region.Addr, size int) uint64 {
		return 0x200000001
	})
	eng.RegisterTracking(0x3000, 8, 8, 1, "dw")

	blk := &Block{Stmts: []Stmt{
		CAS{Addr: 0x3000, Size: 4, ExpdLo: 1, DataLo: 3, Double: true, ExpdHi: 2, DataHi: 4},
	}}
	ib := Instrument(blk, eng)
	expect.True(t, ib.Run())
	expect.True(t, strings.Contains(report(t, eng), "0x400000003 written to address 0x3000"))
}

func TestDoublewordCASTooWide(t *testing.T) {
	eng := newEngine(0, nil)
	blk := &Block{Stmts: []Stmt{
		CAS{Addr: 0x3000, Size: 8, ExpdLo: 1, DataLo: 3, Double: true},
	}}
	require.Panics(t, func() { Instrument(blk, eng) })
}

func TestLLSC(t *testing.T) {
	eng := newEngine(0, nil)
	eng.RegisterTracking(0x4000, 8, 8, 2, "ll")

	data := uint64(0x55)
	blk := &Block{Stmts: []Stmt{
		LLSC{Addr: 0x4000, Size: 8},                   // load-linked
		LLSC{Addr: 0x4000, Size: 8, StoreData: &data}, // store-conditional
	}}
	ib := Instrument(blk, eng)
	expect.True(t, ib.Run())
	// The store-conditional is recorded unconditionally.
	expect.True(t, strings.Contains(report(t, eng), "0x55 written to address 0x4000"))
}

func TestDirtyHelper(t *testing.T) {
	eng := newEngine(engine.MaskRead|engine.MaskWrite, nil)
	eng.RegisterTracking(0x5000, 8, 8, 2, "d")

	blk := &Block{Stmts: []Stmt{
		Dirty{Fx: FxModify, Addr: 0x5000, Size: 8},
	}}
	ib := Instrument(blk, eng)
	expect.True(t, ib.Run())
	// The helper's written data is opaque; the placeholder is recorded.
	expect.True(t, strings.Contains(report(t, eng), "0xdead written to address 0x5000"))
}

func TestPassthroughStatements(t *testing.T) {
	eng := newEngine(0, nil)
	blk := &Block{Stmts: []Stmt{
		NoOp{}, AbiHint{}, Put{}, PutI{}, MBE{}, Exit{},
	}}
	ib := Instrument(blk, eng)
	expect.EQ(t, len(blk.Stmts), ib.Len())
	expect.True(t, ib.Run())
	expect.EQ(t, uint32(0), eng.Now())
}
