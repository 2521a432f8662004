package cqf

// growFilter builds a fresh filter at double f's nslots, same
// key_bits/value_bits/hash_mode/seed/auto_resize/lock_mode, and migrates
// every entry across by iterating f in ascending hashed-key order and
// replaying each (hashed, value, count) into the new layout (spec §4.6:
// "grow in place ... old storage is freed only after every entry has been
// copied into the new one"). Grounded on cascade.go's newLevel, generalized
// from "append a fresh level" to "rebuild one filter at double capacity."
func growFilter(f *Filter, newStorage storage) (*Filter, error) {
	l, err := computeLayout(f.hdr.NSlots*2, f.hdr.KeyBits, f.hdr.ValueBits)
	if err != nil {
		return nil, err
	}

	hdr := f.hdr
	hdr.NSlots = l.nslots
	hdr.XNSlots = l.xnslots
	hdr.KeyRemainderBits = l.keyRemainderBits
	hdr.BitsPerSlot = l.bitsPerSlot
	hdr.NBlocks = l.nblocks
	hdr.NElts = 0
	hdr.NDistinctElts = 0
	hdr.NOccupiedSlots = 0

	grown := newFilterFromStorage(newStorage, hdr, f.locks.mode, f.locks.observer)
	grown.writeHeader()

	it := f.NewIterator(0)
	for !it.End() {
		hashed, value, count := it.IteratorHash()
		if err := grown.insertHashed(hashed, value, count, false); err != nil {
			return nil, err
		}
		it.Next()
	}
	return grown, nil
}

// resizeFilter grows f into a freshly malloc'd double-size filter, used by
// ensureCapacity's auto-resize path.
func resizeFilter(f *Filter) (*Filter, error) {
	l, err := computeLayout(f.hdr.NSlots*2, f.hdr.KeyBits, f.hdr.ValueBits)
	if err != nil {
		return nil, err
	}
	return growFilter(f, newOwnedStorage(l.totalSizeInBytes))
}

// ResizeMalloc doubles f's slot capacity in place, allocating the new
// storage itself and freeing the old storage once migration completes
// (spec §4.6, §6's resize/resize_malloc). f is mutated to point at the new
// layout; its old identity (e.g. an outstanding Iterator) is invalidated.
func ResizeMalloc(f *Filter) error {
	grown, err := resizeFilter(f)
	if err != nil {
		return err
	}
	old := f.storage
	*f = *grown
	return old.Close()
}

// Resize doubles f's slot capacity into buf. If buf is too small, it
// returns the number of bytes needed and leaves f untouched, the same
// idempotent continuation-request contract as Init (spec §6, §7
// "buffer_too_small"). On success f is mutated to point at buf and the old
// storage is closed.
func Resize(f *Filter, buf []byte) (uint64, error) {
	l, err := computeLayout(f.hdr.NSlots*2, f.hdr.KeyBits, f.hdr.ValueBits)
	if err != nil {
		return 0, err
	}
	if uint64(len(buf)) < l.totalSizeInBytes {
		return l.totalSizeInBytes, nil
	}

	grown, err := growFilter(f, newBorrowedStorage(buf))
	if err != nil {
		return 0, err
	}
	old := f.storage
	*f = *grown
	return 0, old.Close()
}
