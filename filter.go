package cqf

import "math/bits"

// Options configures a new Filter at Init/Malloc time (spec §6's
// init(nslots, key_bits, value_bits, lock_mode, hash_mode, seed, ...)).
// Matches the teacher's habit of configuring newQuoFil/newCasFil with a
// plain parameter struct rather than a functional-options chain.
type Options struct {
	NSlots    uint64
	KeyBits   uint64
	ValueBits uint64

	HashMode   HashMode
	LockMode   LockMode
	AutoResize bool
	Seed       uint32

	// Observer, if set, records stripe-lock contention statistics each
	// time a mutator takes stripe locks; calls that take no locks
	// (LocksForbidden, or LocksOptional without a lock request) are not
	// recorded (DESIGN NOTES, "Instrumentation record").
	Observer *waitObserver
}

// Filter is a Counting Quotient Filter: a compact, mergeable, approximate
// multiset mapping fixed-width hashed keys to small counters (spec §1).
type Filter struct {
	hdr Header

	bitsPerSlot uint
	blocksBuf   []byte

	storage storage
	locks   *lockTable

	quotientBits     uint
	keyRemainderMask uint64
	valueMask        uint64
}

// Init validates opts and lays the filter out in buf. If buf is too small,
// Init returns (nil, bytesNeeded, nil) so the call is a safe, idempotent
// continuation request (spec §6, §7 "buffer_too_small").
func Init(buf []byte, opts Options) (*Filter, uint64, error) {
	l, err := computeLayout(opts.NSlots, opts.KeyBits, opts.ValueBits)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(buf)) < l.totalSizeInBytes {
		return nil, l.totalSizeInBytes, nil
	}

	hdr := Header{
		Magic:            headerMagic,
		Version:          headerVersion,
		HashMode:         opts.HashMode,
		AutoResize:       opts.AutoResize,
		Seed:             opts.Seed,
		NSlots:           l.nslots,
		XNSlots:          l.xnslots,
		KeyBits:          l.keyBits,
		ValueBits:        l.valueBits,
		KeyRemainderBits: l.keyRemainderBits,
		BitsPerSlot:      l.bitsPerSlot,
		RangeLo:          rangeLo(l.keyBits),
		RangeHi:          rangeHi(l.keyBits),
		NBlocks:          l.nblocks,
	}

	s := newBorrowedStorage(buf)
	f := newFilterFromStorage(s, hdr, opts.LockMode, opts.Observer)
	f.writeHeader()
	return f, 0, nil
}

// Malloc allocates an owned buffer sized by opts and initializes a filter
// in it, the convenience wrapper spec §6 calls out alongside init/free.
func Malloc(opts Options) (*Filter, error) {
	l, err := computeLayout(opts.NSlots, opts.KeyBits, opts.ValueBits)
	if err != nil {
		return nil, err
	}
	s := newOwnedStorage(l.totalSizeInBytes)
	hdr := Header{
		Magic:            headerMagic,
		Version:          headerVersion,
		HashMode:         opts.HashMode,
		AutoResize:       opts.AutoResize,
		Seed:             opts.Seed,
		NSlots:           l.nslots,
		XNSlots:          l.xnslots,
		KeyBits:          l.keyBits,
		ValueBits:        l.valueBits,
		KeyRemainderBits: l.keyRemainderBits,
		BitsPerSlot:      l.bitsPerSlot,
		RangeLo:          rangeLo(l.keyBits),
		RangeHi:          rangeHi(l.keyBits),
		NBlocks:          l.nblocks,
	}
	f := newFilterFromStorage(s, hdr, opts.LockMode, opts.Observer)
	f.writeHeader()
	return f, nil
}

// Use adopts an already-initialized buffer (spec §6's use(buffer, buflen,
// lock_mode)): the header is parsed and validated, but a fresh lock table
// and runtime record are built — no lock state is ever persisted.
func Use(buf []byte, lockMode LockMode, observer *waitObserver) (*Filter, error) {
	hdr, err := unmarshalHeader(buf)
	if err != nil {
		return nil, err
	}
	l, err := computeLayout(hdr.NSlots, hdr.KeyBits, hdr.ValueBits)
	if err != nil {
		return nil, ErrCorruption.Wrap(err)
	}
	if uint64(len(buf)) < l.totalSizeInBytes {
		return nil, ErrCorruption.New("buffer too short: have %d bytes, need %d", len(buf), l.totalSizeInBytes)
	}

	s := newBorrowedStorage(buf)
	f := newFilterFromStorage(s, hdr, lockMode, observer)
	return f, nil
}

func newFilterFromStorage(s storage, hdr Header, lockMode LockMode, observer *waitObserver) *Filter {
	buf := s.Bytes()
	f := &Filter{
		hdr:         hdr,
		bitsPerSlot: uint(hdr.BitsPerSlot),
		blocksBuf:   buf[headerByteSize:],
		storage:     s,
		locks:       newLockTable(lockMode, hdr.XNSlots, observer),
	}
	f.quotientBits = uint(bits.TrailingZeros64(hdr.NSlots))
	f.keyRemainderMask = mask64(uint(hdr.KeyRemainderBits))
	f.valueMask = mask64(uint(hdr.ValueBits))
	return f
}

func rangeLo(keyBits uint64) uint64 {
	if keyBits >= 64 {
		return 0
	}
	return 1 << keyBits
}

func rangeHi(keyBits uint64) uint64 {
	if keyBits >= 64 {
		return 1 << (keyBits - 64)
	}
	return 0
}

func (f *Filter) writeHeader() {
	copy(f.storage.Bytes(), marshalHeader(f.hdr))
}

// syncHeader flushes live counters back into the persisted header bytes.
// Called after every mutation that changes nelts/ndistinctElts/noccupiedSlots.
func (f *Filter) syncHeader() {
	copy(f.storage.Bytes(), marshalHeader(f.hdr))
}

// Destroy releases whatever storage the filter owns. Safe to call once.
func (f *Filter) Destroy() error {
	return f.storage.Close()
}

// Reset zeros every block and live counter, keeping the layout (nslots,
// key_bits, value_bits, hash_mode, seed) unchanged.
func (f *Filter) Reset() {
	for i := range f.blocksBuf {
		f.blocksBuf[i] = 0
	}
	f.hdr.NElts = 0
	f.hdr.NDistinctElts = 0
	f.hdr.NOccupiedSlots = 0
	f.syncHeader()
}

// NSlots, XNSlots, KeyBits, LoadFactor expose read-only layout/state used
// by callers deciding whether to resize (spec §4.6) and by tests asserting
// scenario invariants (spec §8).
func (f *Filter) NSlots() uint64  { return f.hdr.NSlots }
func (f *Filter) XNSlots() uint64 { return f.hdr.XNSlots }
func (f *Filter) KeyBits() uint64 { return f.hdr.KeyBits }

func (f *Filter) NElts() uint64          { return f.hdr.NElts }
func (f *Filter) NDistinctElts() uint64  { return f.hdr.NDistinctElts }
func (f *Filter) NOccupiedSlots() uint64 { return f.hdr.NOccupiedSlots }

func (f *Filter) LoadFactor() float64 {
	return float64(f.hdr.NOccupiedSlots) / float64(f.hdr.XNSlots)
}

// decompose splits a hashed value into (quotient, remainder) per spec §4.5:
// quotient = h >> key_remainder_bits, remainder = h & ((1<<key_remainder_bits)-1).
func (f *Filter) decompose(hashed uint64) (quotient, remainder uint64) {
	remainder = hashed & f.keyRemainderMask
	quotient = hashed >> f.hdr.KeyRemainderBits
	return quotient, remainder
}

func (f *Filter) recompose(quotient, remainder uint64) uint64 {
	return quotient<<f.hdr.KeyRemainderBits | remainder
}

// packSlot/unpackSlot combine a caller value tag with a remainder-or-digit
// into one slot's packed bits: high value_bits are the tag, low
// key_remainder_bits are the remainder (spec §3, §4.5).
func (f *Filter) packSlot(value, remainder uint64) uint64 {
	return (value&f.valueMask)<<f.hdr.KeyRemainderBits | (remainder & f.keyRemainderMask)
}

func (f *Filter) unpackSlot(packed uint64) (value, remainder uint64) {
	remainder = packed & f.keyRemainderMask
	value = packed >> f.hdr.KeyRemainderBits & f.valueMask
	return value, remainder
}

func (f *Filter) blockIndex(slot uint64) (blockIdx uint64, rel uint) {
	return slot / slotsPerBlock, uint(slot % slotsPerBlock)
}

func (f *Filter) getSlot(i uint64) uint64 {
	blk := f.block(i / slotsPerBlock)
	return blk.Slot(uint(i % slotsPerBlock))
}

func (f *Filter) setSlot(i uint64, v uint64) {
	blk := f.block(i / slotsPerBlock)
	blk.SetSlot(uint(i%slotsPerBlock), v)
}

func (f *Filter) isOccupied(i uint64) bool {
	blk := f.block(i / slotsPerBlock)
	return blk.IsOccupied(uint(i % slotsPerBlock))
}

func (f *Filter) setOccupied(i uint64, v bool) {
	blk := f.block(i / slotsPerBlock)
	blk.SetOccupied(uint(i%slotsPerBlock), v)
}

func (f *Filter) isRunend(i uint64) bool {
	blk := f.block(i / slotsPerBlock)
	return blk.IsRunend(uint(i % slotsPerBlock))
}

func (f *Filter) setRunend(i uint64, v bool) {
	blk := f.block(i / slotsPerBlock)
	blk.SetRunend(uint(i%slotsPerBlock), v)
}

// runReach implements spec §4.5's "finding a run's end," generalized (as in
// the canonical RSQF run_end routine) to also serve as the insertion anchor
// for a brand-new home: called on any index i, not just an occupied one, it
// reports the position of the end of whichever run reaches i (the run homed
// at the highest occupied slot at or before i within this block, or the one
// run spilling in from an earlier block via this block's cached offset).
//
// ok is false only when nothing at all precedes i: i is unambiguously free.
// When ok is true, reach can be less than i (something precedes i but its
// run already ended before reaching it), equal to i (i is exactly a run's
// last slot), or greater than i (i is strictly inside a run) — callers that
// need to know whether i itself is occupied must compare reach against i
// rather than test reach == i alone, since a run ending exactly at i and i
// being free both leave runEnd(i) == i under the older, collapsed contract.
//
// The runends scan below ignores the low offset%slotsPerBlock bits of the
// first block it searches: those bits close out the single run spilling in
// from an earlier block (already accounted for by that block's own rank),
// not any home local to this one, and counting them again toward rank would
// misattribute a prior run's end to a later home.
func (f *Filter) runReach(i uint64) (reach uint64, ok bool) {
	blockIdx, rel := f.blockIndex(i)
	blk := f.block(blockIdx)

	blockRank := uint64(popcountRange(blk.Occupieds(), 0, rel+1))
	offset := uint64(blk.Offset())

	if blockRank == 0 {
		if uint64(rel) < offset {
			return slotsPerBlock*blockIdx + offset - 1, true
		}
		return 0, false
	}

	searchBlockIdx := blockIdx + offset/slotsPerBlock
	ignoreBits := uint(offset % slotsPerBlock)
	rank := blockRank - 1

	for {
		rblk := f.block(searchBlockIdx)
		runends := rblk.Runends()
		if ignoreBits > 0 {
			runends &^= uint64(1)<<ignoreBits - 1
		}
		count := uint64(popcountRange(runends, 0, slotsPerBlock))
		if rank < count {
			pos := selectBit(runends, uint(rank))
			return slotsPerBlock*searchBlockIdx + uint64(pos), true
		}
		rank -= count
		searchBlockIdx++
		ignoreBits = 0
	}
}

// runEnd collapses runReach to the single-value contract runStart,
// walkRun, and recomputeOffset rely on: each only ever adds 1 to the
// result or compares it to a block boundary, and for both of those uses
// "i is free" and "some run reaches exactly to i" are interchangeable, so
// returning i for either case is harmless there. emptyAt, insertAnchor,
// and findFirstEmptySlot need the distinction and call runReach directly.
func (f *Filter) runEnd(i uint64) uint64 {
	reach, ok := f.runReach(i)
	if !ok || reach < i {
		return i
	}
	return reach
}

// emptyAt reports whether slot i is free: not a home slot itself, and not
// covered by any run extending from an earlier home.
func (f *Filter) emptyAt(i uint64) bool {
	if f.isOccupied(i) {
		return false
	}
	reach, ok := f.runReach(i)
	return !ok || reach < i
}

// findFirstEmptySlot walks forward from from, jumping past whatever run
// covers the current position, until it lands on an empty slot.
func (f *Filter) findFirstEmptySlot(from uint64) uint64 {
	i := from
	for {
		reach, ok := f.runReach(i)
		if !ok || reach < i {
			return i
		}
		i = reach + 1
	}
}

// runStart implements spec §4.5's "finding the run's start": for an
// occupied home q, the first slot of q's own run.
func (f *Filter) runStart(q uint64) uint64 {
	if q == 0 {
		return 0
	}
	return f.runEnd(q-1) + 1
}

// insertAnchor returns the slot at which a brand-new home q's run should
// start: q itself if nothing extends there yet, or one past the end of
// whatever run from an earlier home currently reaches q (spec §4.5 step 4,
// "find the insertion position (just after the prior run's end)"). Uses
// runReach rather than runEnd directly, since q itself (not q-1) is being
// tested here: a run that spills in from an earlier home and ends exactly
// at q must still push the new run to q+1, not let it overwrite q.
func (f *Filter) insertAnchor(q uint64) uint64 {
	reach, ok := f.runReach(q)
	if !ok || reach < q {
		return q
	}
	return reach + 1
}

// shiftRangeRight moves the contents of [from, to) up by `by` slots,
// landing them in [from+by, to+by); the `by` slots now vacated at
// [from, from+by) are left with stale content for the caller to overwrite.
// runend bits travel with their slots; occupied bits never move (they
// track home quotients, not run contents). Processes destinations in
// descending order so a slot is always read before anything overwrites it.
func (f *Filter) shiftRangeRight(from, to, by uint64) {
	if by == 0 || to <= from {
		return
	}
	count := to - from
	for k := uint64(0); k < count; k++ {
		srcIdx := to - 1 - k
		dstIdx := srcIdx + by
		f.setSlot(dstIdx, f.getSlot(srcIdx))
		f.setRunend(dstIdx, f.isRunend(srcIdx))
	}
}

// shiftRangeLeft moves the contents of [from, to) down by `by` slots,
// landing them in [from-by, to-by), and zeroes the `by` slots vacated at
// the tail [to-by, to). Processes sources in ascending order.
func (f *Filter) shiftRangeLeft(from, to, by uint64) {
	if by == 0 {
		return
	}
	if to > from {
		count := to - from
		for k := uint64(0); k < count; k++ {
			srcIdx := from + k
			dstIdx := srcIdx - by
			f.setSlot(dstIdx, f.getSlot(srcIdx))
			f.setRunend(dstIdx, f.isRunend(srcIdx))
		}
	}
	for i := to - by; i < to; i++ {
		f.setSlot(i, 0)
		f.setRunend(i, false)
	}
}

// recomputeOffset recalculates one block's cached offset byte from
// scratch: the number of this block's slots, counted from its first, that
// are covered by whatever run homed in an earlier block still extends into
// it (runend - blockStart + 1, or 0 when no such run reaches the block;
// saturating at 255), the form runReach reads back. Must be
// called for every block a shift crosses, in ascending block order, since
// each block's offset depends on the (by-then-already-correct) state of
// the block before it.
func (f *Filter) recomputeOffset(blockIdx uint64) {
	blk := f.block(blockIdx)
	blockStart := blockIdx * slotsPerBlock
	if blockStart == 0 {
		blk.SetOffset(0)
		return
	}
	e := f.runEnd(blockStart - 1)
	if e < blockStart {
		blk.SetOffset(0)
		return
	}
	d := e - blockStart + 1
	if d > 255 {
		d = 255
	}
	blk.SetOffset(uint8(d))
}

// walkRun visits every distinct entry in q's run in ascending packed-value
// order, decoding each one's run-length counter. fn is called with the
// entry's starting slot, its full packed value, the unpacked value tag and
// remainder, and its decoded count; returning false stops the walk early.
// Does nothing if q is not a home slot.
func (f *Filter) walkRun(q uint64, fn func(pos, packed, value, remainder, count uint64) bool) {
	if !f.isOccupied(q) {
		return
	}
	start, end := f.runStart(q), f.runEnd(q)
	pos := start
	for pos <= end {
		packed := f.getSlot(pos)
		value, remainder := f.unpackSlot(packed)
		count, digits := decodeRunCount(packed, pos, end+1, f.getSlot)
		if !fn(pos, packed, value, remainder, count) {
			return
		}
		pos += 1 + digits
	}
}

// fixOffsets recomputes offsets for every block touched by a shift over
// [lo, hi], ascending.
func (f *Filter) fixOffsets(lo, hi uint64) {
	loBlock, _ := f.blockIndex(lo)
	hiBlock, _ := f.blockIndex(hi)
	for b := loBlock; b <= hiBlock; b++ {
		f.recomputeOffset(b)
	}
}
