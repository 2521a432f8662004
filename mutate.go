package cqf

// runEntry is one decoded (key, value, count) unit inside a run, keyed by
// its full packed slot value so entries from different value tags that
// happen to share a remainder still sort and compare correctly (DESIGN.md,
// resolved Open Question 2).
type runEntry struct {
	packed uint64
	count  uint64
}

// decodeRunEntries materializes every entry of q's run, or nil if q is not
// currently a home slot.
func (f *Filter) decodeRunEntries(q uint64) []runEntry {
	if !f.isOccupied(q) {
		return nil
	}
	start, end := f.runStart(q), f.runEnd(q)
	var entries []runEntry
	pos := start
	for pos <= end {
		packed := f.getSlot(pos)
		count, digits := decodeRunCount(packed, pos, end+1, f.getSlot)
		entries = append(entries, runEntry{packed: packed, count: count})
		pos += 1 + digits
	}
	return entries
}

// encodedLen returns how many slots entries would occupy once written out.
func encodedLen(entries []runEntry) uint64 {
	var n uint64
	for _, e := range entries {
		n += 1 + uint64(len(encodeCounterDigits(e.packed, e.count)))
	}
	return n
}

// writeRunEntries writes entries (ascending by packed value) starting at
// pos. It does not touch runend bits; callers fix those up afterwards.
func (f *Filter) writeRunEntries(pos uint64, entries []runEntry) {
	for _, e := range entries {
		digits := encodeCounterDigits(e.packed, e.count)
		f.setSlot(pos, e.packed)
		for i, d := range digits {
			f.setSlot(pos+1+uint64(i), d)
		}
		pos += 1 + uint64(len(digits))
	}
}

// resizeRun replaces q's run contents from oldEntries to newEntries,
// physically shifting whatever comes after the run to make room (or close
// the gap), fixing up occupied/runend/offset state and the live header
// counters. newEntries empty clears q's occupied bit entirely.
func (f *Filter) resizeRun(q uint64, oldEntries, newEntries []runEntry) {
	var oldStart uint64
	if len(oldEntries) > 0 {
		oldStart = f.runStart(q)
	} else {
		oldStart = f.insertAnchor(q)
	}
	oldLen := encodedLen(oldEntries)
	newLen := encodedLen(newEntries)

	var fixHi uint64
	switch {
	case newLen > oldLen:
		grow := newLen - oldLen
		empty := f.findFirstEmptySlot(oldStart + oldLen)
		f.shiftRangeRight(oldStart+oldLen, empty, grow)
		fixHi = empty + grow
	case newLen < oldLen:
		shrink := oldLen - newLen
		empty := f.findFirstEmptySlot(oldStart + oldLen)
		f.shiftRangeLeft(oldStart+oldLen, empty, shrink)
		fixHi = empty
	}

	f.writeRunEntries(oldStart, newEntries)

	for i := oldStart; i < oldStart+newLen; i++ {
		f.setRunend(i, false)
	}
	if newLen > 0 {
		f.setRunend(oldStart+newLen-1, true)
	}
	f.setOccupied(q, len(newEntries) > 0)

	// Offsets are recomputed only once q's runend and occupied bits are in
	// place, since recomputeOffset reads them through runEnd.
	if newLen != oldLen {
		f.fixOffsets(q, fixHi)
	}

	if newLen >= oldLen {
		f.hdr.NOccupiedSlots += newLen - oldLen
	} else {
		f.hdr.NOccupiedSlots -= oldLen - newLen
	}
	distinctDelta := len(newEntries) - len(oldEntries)
	if distinctDelta >= 0 {
		f.hdr.NDistinctElts += uint64(distinctDelta)
	} else {
		f.hdr.NDistinctElts -= uint64(-distinctDelta)
	}
}

// mergeInsert returns old with (packed, count) merged in: summed into the
// existing entry if packed is already present, else inserted at the
// position that keeps entries sorted ascending by packed value (spec
// §4.5 step 5, "insert ... at the position that keeps remainders
// increasing").
func mergeInsert(old []runEntry, packed, count uint64) (result []runEntry, merged bool) {
	out := make([]runEntry, 0, len(old)+1)
	placed := false
	for _, e := range old {
		if !placed {
			if e.packed == packed {
				out = append(out, runEntry{packed: packed, count: e.count + count})
				placed, merged = true, true
				continue
			}
			if e.packed > packed {
				out = append(out, runEntry{packed: packed, count: count})
				placed = true
			}
		}
		out = append(out, e)
	}
	if !placed {
		out = append(out, runEntry{packed: packed, count: count})
	}
	return out, merged
}

// ensureCapacity triggers an in-place auto-resize when the filter is at or
// above 95% load (spec §4.5 step 2), or refuses outright once it is
// completely full and auto_resize is off.
func (f *Filter) ensureCapacity() error {
	if f.LoadFactor() < 0.95 {
		return nil
	}
	if !f.hdr.AutoResize {
		if f.hdr.NOccupiedSlots >= f.hdr.XNSlots {
			return ErrNoSpace.New("filter full: %d/%d slots occupied", f.hdr.NOccupiedSlots, f.hdr.XNSlots)
		}
		return nil
	}
	grown, err := resizeFilter(f)
	if err != nil {
		return err
	}
	old := f.storage
	*f = *grown
	return old.Close()
}

// Insert records count occurrences of (key, value) (spec §4.5 "Insert",
// §6's insert(key, value, count) -> bool, rendered as an error so callers
// get a classified no_space rather than a bare boolean). lock is only
// consulted in LocksOptional mode.
func (f *Filter) Insert(key, value, count uint64, lock bool) error {
	return timeMutation(func() error {
		if err := f.ensureCapacity(); err != nil {
			return err
		}
		return f.insertHashed(f.hashKey(key), value, count, lock)
	})
}

// insertHashed is Insert's body given an already-hashed value, so
// resize.go and merge.go can replay entries between filters without
// un-hashing and re-hashing a HashDefault key (which is impossible: that
// hash mode is one-way). Callers must already have called ensureCapacity.
func (f *Filter) insertHashed(hashed, value, count uint64, lock bool) error {
	q, r := f.decompose(hashed)
	packed := f.packSlot(value, r)

	f.locks.acquireForSlot(q, lock)
	defer f.locks.releaseForSlot(q, lock)

	old := f.decodeRunEntries(q)
	updated, _ := mergeInsert(old, packed, count)
	f.resizeRun(q, old, updated)
	f.hdr.NElts += count
	f.syncHeader()
	return nil
}

// Remove decrements (key, value)'s count by count, deleting the entry
// entirely if it reaches zero. Removing more than present is a logical
// error: it returns not_found and leaves the filter unmodified (spec §4.5
// "Remove").
func (f *Filter) Remove(key, value, count uint64, lock bool) error {
	return timeMutation(func() error {
		q, r := f.decompose(f.hashKey(key))
		packed := f.packSlot(value, r)

		f.locks.acquireForSlot(q, lock)
		defer f.locks.releaseForSlot(q, lock)

		old := f.decodeRunEntries(q)
		idx, existing, found := findEntry(old, packed)
		if !found || existing.count < count {
			return ErrNotFound.New("key/value not present with count >= %d", count)
		}

		updated := append([]runEntry(nil), old...)
		if existing.count == count {
			updated = append(updated[:idx], updated[idx+1:]...)
		} else {
			updated[idx].count -= count
		}
		f.resizeRun(q, old, updated)
		f.hdr.NElts -= count
		f.syncHeader()
		return nil
	})
}

// SetCount sets (key, value)'s count to exactly count, inserting the entry
// if absent (count > 0) or deleting it (count == 0). Unlike Insert, this
// never adds to an existing count.
func (f *Filter) SetCount(key, value, count uint64, lock bool) error {
	return timeMutation(func() error {
		if count > 0 {
			if err := f.ensureCapacity(); err != nil {
				return err
			}
		}
		q, r := f.decompose(f.hashKey(key))
		packed := f.packSlot(value, r)

		f.locks.acquireForSlot(q, lock)
		defer f.locks.releaseForSlot(q, lock)

		old := f.decodeRunEntries(q)
		idx, existing, found := findEntry(old, packed)

		updated := append([]runEntry(nil), old...)
		var eltsDelta int64
		switch {
		case found && count == 0:
			eltsDelta = -int64(existing.count)
			updated = append(updated[:idx], updated[idx+1:]...)
		case found:
			eltsDelta = int64(count) - int64(existing.count)
			updated[idx].count = count
		case count > 0:
			eltsDelta = int64(count)
			updated, _ = mergeInsert(old, packed, count)
		default:
			return nil
		}
		f.resizeRun(q, old, updated)
		if eltsDelta >= 0 {
			f.hdr.NElts += uint64(eltsDelta)
		} else {
			f.hdr.NElts -= uint64(-eltsDelta)
		}
		f.syncHeader()
		return nil
	})
}

// DeleteKeyValue removes every instance of (key, value) outright,
// regardless of its current count.
func (f *Filter) DeleteKeyValue(key, value uint64, lock bool) error {
	return timeMutation(func() error {
		q, r := f.decompose(f.hashKey(key))
		packed := f.packSlot(value, r)

		f.locks.acquireForSlot(q, lock)
		defer f.locks.releaseForSlot(q, lock)

		old := f.decodeRunEntries(q)
		idx, existing, found := findEntry(old, packed)
		if !found {
			return ErrNotFound.New("key/value not present")
		}
		updated := append([]runEntry(nil), old...)
		updated = append(updated[:idx], updated[idx+1:]...)
		f.resizeRun(q, old, updated)
		f.hdr.NElts -= existing.count
		f.syncHeader()
		return nil
	})
}

// DeleteKey removes every (key, *) entry sharing key's remainder, whatever
// their value tags.
func (f *Filter) DeleteKey(key uint64, lock bool) error {
	return timeMutation(func() error {
		q, r := f.decompose(f.hashKey(key))

		f.locks.acquireForSlot(q, lock)
		defer f.locks.releaseForSlot(q, lock)

		old := f.decodeRunEntries(q)
		var updated []runEntry
		var removedCount uint64
		anyRemoved := false
		for _, e := range old {
			_, remainder := f.unpackSlot(e.packed)
			if remainder == r {
				removedCount += e.count
				anyRemoved = true
				continue
			}
			updated = append(updated, e)
		}
		if !anyRemoved {
			return ErrNotFound.New("key not present")
		}
		f.resizeRun(q, old, updated)
		f.hdr.NElts -= removedCount
		f.syncHeader()
		return nil
	})
}

// Replace atomically moves (key, oldvalue)'s full count onto (key,
// newvalue): equivalent to Remove(key, oldvalue, c) then Insert(key,
// newvalue, c) where c is the pre-existing count, but executed under one
// lock acquisition for atomicity (spec §4.5 "Replace"). oldvalue and
// newvalue must decompose to the same quotient (they're the same key).
func (f *Filter) Replace(key, oldvalue, newvalue uint64, lock bool) error {
	return timeMutation(func() error {
		q, r := f.decompose(f.hashKey(key))
		oldPacked := f.packSlot(oldvalue, r)
		newPacked := f.packSlot(newvalue, r)

		f.locks.acquireForSlot(q, lock)
		defer f.locks.releaseForSlot(q, lock)

		old := f.decodeRunEntries(q)
		idx, existing, found := findEntry(old, oldPacked)
		if !found {
			return ErrNotFound.New("key/value not present")
		}

		without := append(append([]runEntry(nil), old[:idx]...), old[idx+1:]...)
		updated, _ := mergeInsert(without, newPacked, existing.count)
		f.resizeRun(q, old, updated)
		f.syncHeader()
		return nil
	})
}

// findEntry returns the index and value of the entry with the given packed
// value, or found == false.
func findEntry(entries []runEntry, packed uint64) (idx int, entry runEntry, found bool) {
	for i, e := range entries {
		if e.packed == packed {
			return i, e, true
		}
	}
	return 0, runEntry{}, false
}
