package cqf

import "container/heap"

// Merge copies every entry of a and b into dst, summing counts where both
// sides hold the same (hashed key, value) pair (spec §4.5 "Merge", §6's
// merge(dst, a, b) -> bool: "the multiset union" of a and b). a, b, and dst
// must share key_bits/value_bits/hash_mode/seed; dst is not required to be
// empty. Grounded on cascade.go's spill, which appends one level's sorted
// entries into the next rather than re-deriving positions from scratch.
func Merge(dst, a, b *Filter) error {
	for _, src := range [2]*Filter{a, b} {
		it := src.NewIterator(0)
		for !it.End() {
			hashed, value, count := it.IteratorHash()
			if err := dst.ensureCapacity(); err != nil {
				return err
			}
			if err := dst.insertHashed(hashed, value, count, false); err != nil {
				return err
			}
			it.Next()
		}
	}
	return nil
}

// mergeHeapItem is one source filter's current iterator position, ordered
// by hashed key so a k-way merge can always pull the globally-smallest
// entry next.
type mergeHeapItem struct {
	it     *Iterator
	hashed uint64
	value  uint64
	count  uint64
}

type mergeHeap []*mergeHeapItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].hashed < h[j].hashed }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*mergeHeapItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MultiMerge merges srcs into dst in one pass, pulling the globally
// smallest hashed entry across all sources at each step via a
// container/heap k-way merge (no library in the retrieved pack supplies a
// generic k-way merge heap, so this is stdlib container/heap, as
// DESIGN.md records). Entries arrive at dst merged by hashed key across
// sources, each source in its own iteration order (see Iterator), matching the access pattern cascade.go's spill relies on for O(1)
// appends, though here each entry still goes through the general Insert
// path since dst may already hold data of its own.
func MultiMerge(dst *Filter, srcs []*Filter) error {
	h := make(mergeHeap, 0, len(srcs))
	for _, src := range srcs {
		it := src.NewIterator(0)
		if it.End() {
			continue
		}
		hashed, value, count := it.IteratorHash()
		h = append(h, &mergeHeapItem{it: it, hashed: hashed, value: value, count: count})
	}
	heap.Init(&h)

	for h.Len() > 0 {
		item := heap.Pop(&h).(*mergeHeapItem)

		if err := dst.ensureCapacity(); err != nil {
			return err
		}
		if err := dst.insertHashed(item.hashed, item.value, item.count, false); err != nil {
			return err
		}

		if item.it.Next() {
			hashed, value, count := item.it.IteratorHash()
			item.hashed, item.value, item.count = hashed, value, count
			heap.Push(&h, item)
		}
	}
	return nil
}
