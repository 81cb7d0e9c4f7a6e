package region

import (
	"github.com/grailbio/base/log"
)

// RecordWrite records one sample per word touched by a write of size
// bytes at addr.  The write may begin before Start or extend past End;
// only the intersecting words are recorded.  data holds the written
// value widened to 64 bits; when the write begins before Start the
// value is shifted so that each word's sample holds the bytes actually
// written to it.
func (r *Region) RecordWrite(ctx CallContext, now uint32, addr Addr, size int, data uint64) {
	start := addr
	end := addr + Addr(size)

	if start < r.Start {
		// Align data with the first covered byte.
		offs := uint(r.Start - start)
		if offs >= 8 {
			data = 0
		} else {
			data >>= 8 * offs
		}
		start = r.Start
	}
	if end > r.End {
		end = r.End
	}

	startWix := int(start-r.Start) / r.WordSize
	endWix := int(end-r.Start-1)/r.WordSize + 1
	if startWix >= endWix || endWix > r.NWords {
		log.Panicf("region: write [%#x, %#x) maps to words [%d, %d) of %d",
			start, end, startWix, endWix, r.NWords)
	}

	for wix := startWix; wix < endWix; wix++ {
		hix := r.headIx[wix]
		r.headIx[wix]++
		if r.headIx[wix] >= uint32(r.History) {
			r.headIx[wix] = 0
		}
		cell := &r.matrix[wix*r.History+int(hix)]
		cell.CallStack = ctx
		cell.TimeStamp = now
		cell.Data = data
		data >>= 8 * uint(r.WordSize)
	}
}

// WordHistory returns the recorded samples of word w, newest first.  At
// most History samples are returned; unwritten slots terminate the scan.
func (r *Region) WordHistory(w int) []Access {
	if w < 0 || w >= r.NWords {
		log.Panicf("region: word index %d out of range [0, %d)", w, r.NWords)
	}
	out := make([]Access, 0, r.History)
	hix := int(r.headIx[w]) - 1
	for h := 0; h < r.History; h++ {
		if hix < 0 {
			hix = r.History - 1
		}
		cell := r.matrix[w*r.History+hix]
		if cell.CallStack == nil {
			break
		}
		out = append(out, cell)
		hix--
	}
	return out
}
