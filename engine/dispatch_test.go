package engine

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
	"github.com/sverker/memhist/region"
)

func TestWriteFault(t *testing.T) {
	e := newTestEngine(0)
	p := region.Addr(0x2000)
	e.SetProtection(p, 16, "x", region.ForbidWrite)

	expect.True(t, e.OnAccess(Write, p+4, 1, 0xff))
	// Reads are not forbidden by FORBID_WRITE.
	expect.False(t, e.OnAccess(Read, p+4, 1, 0))
	// Accesses outside the region are clean.
	expect.False(t, e.OnAccess(Write, p+16, 4, 0))
	expect.False(t, e.OnAccess(Write, p-4, 4, 0))
}

func TestReadAndExecFaults(t *testing.T) {
	e := newTestEngine(MaskRead | MaskWrite | MaskExec)
	e.SetProtection(0x3000, 0x100, "ro", region.ForbidRead)
	e.SetProtection(0x4000, 0x100, "nx", region.ForbidExec)

	expect.True(t, e.OnAccess(Read, 0x3000, 8, 0))
	expect.False(t, e.OnAccess(Write, 0x3000, 8, 1))
	expect.True(t, e.OnAccess(Exec, 0x4000, 4, 0))
	expect.False(t, e.OnAccess(Read, 0x4000, 4, 0))
}

func TestFaultSkipsHistory(t *testing.T) {
	e := newTestEngine(0)
	v := region.Addr(0x1000)
	e.RegisterTracking(v, 16, 8, 4, "buf")
	e.SetProtection(v, 16, "buf", region.ForbidWrite)

	expect.True(t, e.OnAccess(Write, v, 8, 7))
	r := e.store.LookupMaxLE(v)
	expect.EQ(t, 0, len(r.WordHistory(0)))
}

func TestViolationAdvancesClock(t *testing.T) {
	e := newTestEngine(0)
	e.SetProtection(0x2000, 16, "x", region.ForbidWrite)
	before := e.Now()
	expect.True(t, e.OnAccess(Write, 0x2004, 1, 0))
	expect.EQ(t, before+1, e.Now())
	// A miss does not.
	expect.False(t, e.OnAccess(Write, 0x9000, 1, 0))
	expect.EQ(t, before+1, e.Now())
}

func TestWriteSpanningRegions(t *testing.T) {
	e := newTestEngine(0)
	a := region.Addr(0x6000)
	e.RegisterTracking(a, 8, 8, 2, "lo")
	e.RegisterTracking(a+8, 8, 8, 2, "hi")

	before := e.Now()
	expect.False(t, e.OnAccess(Write, a+4, 8, 0x1122334455667788))
	// One event, one clock tick, even though two regions were hit.
	expect.EQ(t, before+1, e.Now())

	lo := e.store.LookupMaxLE(a)
	hist := lo.WordHistory(0)
	expect.EQ(t, 1, len(hist))
	expect.EQ(t, uint64(0x1122334455667788), hist[0].Data)

	hi := e.store.LookupMaxLE(a + 8)
	hist = hi.WordHistory(0)
	expect.EQ(t, 1, len(hist))
	// The write began four bytes before 'hi'; its sample holds the
	// shifted upper half.
	expect.EQ(t, uint64(0x11223344), hist[0].Data)
}

func TestCASRecordsOnlyOnMatch(t *testing.T) {
	var cur uint64 = 0x11
	e := New(Opts{
		Context: func() region.CallContext { return stack("    at test") },
		LoadMem: func(addr region.Addr, size int) uint64 { return cur },
	})
	v := region.Addr(0x4000)
	e.RegisterTracking(v, 4, 4, 4, "w")

	expect.False(t, e.OnCAS(v, 4, 0x11, 0x22))
	cur = 0x22
	expect.False(t, e.OnCAS(v, 4, 0x99, 0x33))

	r := e.store.LookupMaxLE(v)
	hist := r.WordHistory(0)
	expect.EQ(t, 1, len(hist))
	expect.EQ(t, uint64(0x22), hist[0].Data)
}

func TestCASFaultsOnForbiddenWrite(t *testing.T) {
	e := New(Opts{
		LoadMem: func(addr region.Addr, size int) uint64 { return 5 },
	})
	e.SetProtection(0x7000, 8, "ro", region.ForbidWrite)
	expect.True(t, e.OnCAS(0x7000, 4, 5, 6))
	expect.False(t, e.OnCAS(0x7000, 4, 4, 6))
}

func TestCASBadSizePanics(t *testing.T) {
	e := newTestEngine(0)
	require.Panics(t, func() { e.OnCAS(0x1000, 3, 0, 0) })
	require.Panics(t, func() { e.OnCAS(0x1000, 2, 0x10000, 0) })
}
