package cqf

import (
	"fmt"
	"strings"
)

// DebugDump renders one line per physical slot whose occupied or runend bit
// is set or whose packed value is nonzero: its index, the occupied/runend
// bits for that position, and its packed value. Other slots are collapsed
// into "..." lines, including a slot inside a run that holds packed value 0
// with neither bit set. Intended
// for the invariant-violation abort path (spec §7), grounded on
// facebookincubator/go-qfext's DebugDump (bucket/O/C/S/remainder table)
// adapted from that package's continuation/shifted bit model to this
// package's occupied/runend block model.
func DebugDump(f *Filter) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  slot  occ  end  packed\n")

	skipped := 0
	for i := uint64(0); i < f.hdr.XNSlots; i++ {
		occ, end := f.isOccupied(i), f.isRunend(i)
		packed := f.getSlot(i)
		if !occ && !end && packed == 0 {
			skipped++
			continue
		}
		if skipped > 0 {
			fmt.Fprintf(&sb, "        ...\n")
			skipped = 0
		}
		fmt.Fprintf(&sb, "%6d  %3t  %3t  %#x\n", i, occ, end, packed)
	}
	if skipped > 0 {
		fmt.Fprintf(&sb, "        ...\n")
	}
	return sb.String()
}

// Copy overwrites dst's blocks with a block-for-block copy of src and
// resets dst's live counters to src's (spec §6's copy(dst, src)). dst and
// src must already share nslots/key_bits/value_bits (the same layout Init
// produced), unlike Merge or Resize, which both change content or layout.
func Copy(dst, src *Filter) error {
	if dst.hdr.NSlots != src.hdr.NSlots || dst.hdr.KeyBits != src.hdr.KeyBits || dst.hdr.ValueBits != src.hdr.ValueBits {
		return ErrInvalidParameter.New("copy requires matching layout: dst(nslots=%d,key_bits=%d,value_bits=%d) src(nslots=%d,key_bits=%d,value_bits=%d)",
			dst.hdr.NSlots, dst.hdr.KeyBits, dst.hdr.ValueBits, src.hdr.NSlots, src.hdr.KeyBits, src.hdr.ValueBits)
	}
	copy(dst.blocksBuf, src.blocksBuf)
	dst.hdr.NElts = src.hdr.NElts
	dst.hdr.NDistinctElts = src.hdr.NDistinctElts
	dst.hdr.NOccupiedSlots = src.hdr.NOccupiedSlots
	dst.syncHeader()
	return nil
}
