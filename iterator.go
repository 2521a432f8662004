package cqf

// Iterator walks a filter's entries in ascending quotient order and, within
// each home's run, in ascending packed-value order (value tag above
// remainder) (spec §4.5 "Iteration", §6's iterator/next/get/end). That is
// ascending hashed-key order when the entries share one value tag; with
// mixed value tags, hashed keys inside a run are not necessarily
// ascending. Modeled on the teacher's
// quoFilIter, adapted to walk occupied runs via runStart/runEnd instead of
// quoFil's shifted/continuation bits, and to surface a decoded count
// alongside each (key, value) pair.
type Iterator struct {
	f *Filter

	q    uint64 // current home slot, once past xnslots iteration is done
	pos  uint64 // current slot within q's run
	end  uint64 // q's run end

	done bool

	key, value, count uint64
}

// NewIterator starts an iterator at the first occupied home at or after
// startQuotient (0 to visit the whole filter).
func (f *Filter) NewIterator(startQuotient uint64) *Iterator {
	it := &Iterator{f: f, q: startQuotient}
	it.seekHome()
	return it
}

// NewIteratorHash implements spec §4.5's "seeking": it positions the
// iterator at an entry whose stored hash is >= hash, rather than
// NewIterator's seek-by-quotient-only. The target quotient's run is
// scanned in its stored (packed-value) order and the iterator stops at the
// first slot whose remainder is >= hash's own; if none in that run
// qualifies, the search continues from the next occupied home, same as
// seekHome does on exhaustion. When the run's entries share one value tag
// this is the smallest stored hash >= hash; with mixed value tags the
// entry found is not necessarily the smallest.
func (f *Filter) NewIteratorHash(hash uint64) *Iterator {
	q, r := f.decompose(hash)
	it := &Iterator{f: f, q: q}

	if f.isOccupied(q) {
		start, end := f.runStart(q), f.runEnd(q)
		pos := start
		for pos <= end {
			packed := f.getSlot(pos)
			_, remainder := f.unpackSlot(packed)
			if remainder >= r {
				it.pos, it.end = pos, end
				it.loadCurrent()
				return it
			}
			_, digits := decodeRunCount(packed, pos, end+1, f.getSlot)
			pos += 1 + digits
		}
	}

	it.q = q + 1
	it.seekHome()
	return it
}

// seekHome advances q to the next occupied home slot at or past its
// current value and loads its run's bounds, or marks the iterator done once
// q runs off the end of the filter.
func (it *Iterator) seekHome() {
	f := it.f
	for it.q < f.hdr.XNSlots && !f.isOccupied(it.q) {
		it.q++
	}
	if it.q >= f.hdr.XNSlots {
		it.done = true
		return
	}
	it.pos = f.runStart(it.q)
	it.end = f.runEnd(it.q)
	it.loadCurrent()
}

func (it *Iterator) loadCurrent() {
	f := it.f
	packed := f.getSlot(it.pos)
	value, remainder := f.unpackSlot(packed)
	count, _ := decodeRunCount(packed, it.pos, it.end+1, f.getSlot)
	hashed := f.recompose(it.q, remainder)
	it.key = f.unhashKey(hashed)
	it.value = value
	it.count = count
}

// End reports whether the iterator has visited every entry.
func (it *Iterator) End() bool { return it.done }

// Get returns the entry the iterator currently sits on: the hash-mode's
// unhashed key (identity for HashDefault, since that hash is one-way), the
// stored value tag, and the decoded count. Calling Get after End is a
// programmer error; it returns the zero entry.
func (it *Iterator) Get() (key, value, count uint64) {
	if it.done {
		return 0, 0, 0
	}
	return it.key, it.value, it.count
}

// Next advances the iterator to its next entry, returning false once
// iteration is exhausted (so it.End() becomes true).
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	f := it.f

	packed := f.getSlot(it.pos)
	_, digits := decodeRunCount(packed, it.pos, it.end+1, f.getSlot)
	next := it.pos + 1 + digits

	if next <= it.end {
		it.pos = next
		it.loadCurrent()
		return true
	}

	it.q++
	it.seekHome()
	return !it.done
}

// IteratorHash exposes the raw hashed key (quotient*2^key_remainder_bits |
// remainder) the current entry decomposed from, bypassing unhashKey. Useful
// for merge.go, which needs to compare and re-store hashed values directly
// rather than re-hashing unhashed keys.
func (it *Iterator) IteratorHash() (hashed, value, count uint64) {
	if it.done {
		return 0, 0, 0
	}
	_, remainder := it.f.unpackSlot(it.f.getSlot(it.pos))
	return it.f.recompose(it.q, remainder), it.value, it.count
}
