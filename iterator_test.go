package cqf

import (
	"testing"

	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"
)

func TestIteratorVisitsEveryEntry(t *testing.T) {
	f := newTestFilter(t, true)

	want := make(map[uint64]uint64)
	for i := 0; i < 300; i++ {
		k := pcg.Uint64() & (1<<20 - 1)
		want[f.hashKey(k)] += 1
		assert.NoError(t, f.Insert(k, 0, 1, false))
	}

	got := make(map[uint64]uint64)
	for it := f.NewIterator(0); !it.End(); it.Next() {
		key, _, count := it.Get()
		got[key] += count
	}

	assert.Equal(t, len(got), len(want))
	for k, c := range want {
		assert.Equal(t, got[k], c)
	}
}

func TestIteratorAscendingHashOrder(t *testing.T) {
	f := newTestFilter(t, true)

	for i := 0; i < 200; i++ {
		assert.NoError(t, f.Insert(pcg.Uint64()&(1<<20-1), 0, 1, false))
	}

	var last uint64
	first := true
	for it := f.NewIterator(0); !it.End(); it.Next() {
		hashed, _, _ := it.IteratorHash()
		if !first {
			assert.That(t, hashed >= last)
		}
		last, first = hashed, false
	}
}

func TestNewIteratorHashSeeksToSmallestHashAtOrAbove(t *testing.T) {
	f, err := Malloc(Options{NSlots: 128, KeyBits: 14, HashMode: HashNone})
	assert.NoError(t, err)
	defer f.Destroy()

	var hashes []uint64
	for _, rq := range [][2]uint64{{63, 1}, {63, 2}, {64, 5}, {70, 3}} {
		q, r := rq[0], rq[1]
		hashed := f.recompose(q, r)
		hashes = append(hashes, hashed)
		assert.NoError(t, f.Insert(hashed, 0, 1, false))
	}

	// Seeking to exactly a stored hash lands there.
	it := f.NewIteratorHash(hashes[1])
	assert.That(t, !it.End())
	gotHash, _, _ := it.IteratorHash()
	assert.Equal(t, gotHash, hashes[1])

	// Seeking just past the last remainder in q=63's run skips ahead to the
	// next occupied home (q=64) rather than landing inside q=63's run.
	it = f.NewIteratorHash(f.recompose(63, 3))
	assert.That(t, !it.End())
	gotHash, _, _ = it.IteratorHash()
	assert.Equal(t, gotHash, hashes[2])

	// Seeking past every stored hash exhausts the iterator immediately.
	it = f.NewIteratorHash(f.recompose(127, 0))
	assert.That(t, it.End())
}

func TestIteratorInvertibleRecoversKeys(t *testing.T) {
	f, err := Malloc(Options{NSlots: 1 << 8, KeyBits: 20, ValueBits: 4, HashMode: HashInvertible, AutoResize: true})
	assert.NoError(t, err)
	defer f.Destroy()

	want := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		k := pcg.Uint64() & (1<<20 - 1)
		want[k] = true
		assert.NoError(t, f.Insert(k, 0, 1, false))
	}

	got := make(map[uint64]bool)
	for it := f.NewIterator(0); !it.End(); it.Next() {
		key, _, _ := it.Get()
		got[key] = true
	}
	assert.Equal(t, len(got), len(want))
	for k := range want {
		assert.That(t, got[k])
	}
}
