package region

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func protected(start, end Addr) *Region {
	return NewProtected(start, end, "r", ForbidWrite, 0)
}

func TestStoreLookups(t *testing.T) {
	var s Store
	r1 := protected(0x1000, 0x1100)
	r2 := protected(0x2000, 0x2100)
	r3 := protected(0x3000, 0x3100)
	for _, r := range []*Region{r2, r1, r3} {
		expect.Nil(t, s.Insert(r))
	}
	expect.EQ(t, 3, s.Len())
	expect.EQ(t, r1, s.Min())
	expect.EQ(t, r2, s.Succ(r1))
	expect.EQ(t, r3, s.Succ(r2))
	expect.Nil(t, s.Succ(r3))
	expect.Nil(t, s.Pred(r1))
	expect.EQ(t, r2, s.Pred(r3))

	maxle := []struct {
		addr Addr
		want *Region
	}{
		{0, nil},
		{0xfff, nil},
		{0x1000, r1},
		{0x10ff, r1},
		{0x1fff, r1},
		{0x2000, r2},
		{0x2001, r2},
		{0x9000, r3},
	}
	for _, tt := range maxle {
		expect.EQ(t, tt.want, s.LookupMaxLE(tt.addr), "maxle %#x", tt.addr)
	}

	ming := []struct {
		addr Addr
		want *Region
	}{
		{0, r1},
		{0xfff, r1},
		{0x1000, r2},
		{0x2fff, r3},
		{0x3000, nil},
	}
	for _, tt := range ming {
		expect.EQ(t, tt.want, s.LookupMinG(tt.addr), "ming %#x", tt.addr)
	}
	expect.EQ(t, r1, s.LookupMinGE(0x1000))
	expect.EQ(t, r2, s.LookupMinGE(0x1001))

	s.Remove(r2)
	expect.EQ(t, 2, s.Len())
	expect.EQ(t, r3, s.Succ(r1))
	expect.EQ(t, r1, s.Pred(r3))
}

func TestStoreInsertClash(t *testing.T) {
	var s Store
	r1 := protected(0x1000, 0x1100)
	expect.Nil(t, s.Insert(r1))
	dup := protected(0x1000, 0x1200)
	expect.EQ(t, r1, s.Insert(dup))
	expect.EQ(t, 1, s.Len())
}

func TestInsertNonoverlappingPanics(t *testing.T) {
	var s Store
	s.InsertNonoverlapping(protected(0x1000, 0x1100))
	require.Panics(t, func() {
		s.InsertNonoverlapping(protected(0x10f0, 0x1200))
	})
	require.Panics(t, func() {
		s.InsertNonoverlapping(protected(0x0f00, 0x1001))
	})
	// Touching neighbours are fine.
	s.InsertNonoverlapping(protected(0x1100, 0x1200))
}

func TestStoreDoOrder(t *testing.T) {
	var s Store
	starts := []Addr{0x500, 0x100, 0x900, 0x300, 0x700}
	for _, a := range starts {
		s.InsertNonoverlapping(protected(a, a+0x10))
	}
	var got []Addr
	s.Do(func(r *Region) bool {
		got = append(got, r.Start)
		return false
	})
	expect.EQ(t, []Addr{0x100, 0x300, 0x500, 0x700, 0x900}, got)
}
