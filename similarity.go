package cqf

// InnerProduct computes sum(count_a(k) * count_b(k)) over every (hashed
// key, value) pair either filter holds (spec §4.5/§6's inner_product,
// ported from the C reference's qf_inner_product), the exact building
// block spec §1 calls out for cosine/Jaccard similarity between two
// multisets. a and b must share key_bits/value_bits/hash_mode/seed.
func InnerProduct(a, b *Filter) uint64 {
	small, other := a, b
	if b.hdr.NDistinctElts < a.hdr.NDistinctElts {
		small, other = b, a
	}

	var total uint64
	it := small.NewIterator(0)
	for !it.End() {
		hashed, value, count := it.IteratorHash()
		total += count * countHashedValue(other, hashed, value)
		it.Next()
	}
	return total
}

// countHashedValue is CountKeyValue's body given an already-hashed value,
// so InnerProduct can compare entries across two filters without un-hashing
// through a (possibly one-way) hash mode.
func countHashedValue(f *Filter, hashed, value uint64) uint64 {
	q, r := f.decompose(hashed)
	target := f.packSlot(value, r)
	var total uint64
	f.walkRun(q, func(pos, packed, v, remainder, count uint64) bool {
		if packed == target {
			total = count
			return false
		}
		return packed < target
	})
	return total
}

// Magnitude returns sum(count(k)^2) over every distinct (key, value) pair
// in f: InnerProduct(f, f) without the O(n) cross-filter lookups, since
// every entry trivially matches itself (spec §6's magnitude, ported from
// qf_magnitude).
func Magnitude(f *Filter) uint64 {
	var total uint64
	it := f.NewIterator(0)
	for !it.End() {
		_, _, count := it.IteratorHash()
		total += count * count
		it.Next()
	}
	return total
}
