package cqf

import (
	"testing"

	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"
)

func newTestFilter(t *testing.T, autoResize bool) *Filter {
	t.Helper()
	f, err := Malloc(Options{
		NSlots:     1 << 8,
		KeyBits:    20,
		ValueBits:  4,
		AutoResize: autoResize,
	})
	assert.NoError(t, err)
	t.Cleanup(func() { f.Destroy() })
	return f
}

func TestInsertQueryBasic(t *testing.T) {
	f := newTestFilter(t, true)

	var keys []uint64
	for i := 0; i < 500; i++ {
		k := pcg.Uint64() & (1<<20 - 1)
		keys = append(keys, k)
		assert.NoError(t, f.Insert(k, 0, 1, false))
	}

	for _, k := range keys {
		_, found := f.Query(k)
		assert.That(t, found)
	}
}

func TestInsertAccumulatesCount(t *testing.T) {
	f := newTestFilter(t, true)

	assert.NoError(t, f.Insert(0xAB, 1, 3, false))
	assert.NoError(t, f.Insert(0xAB, 1, 4, false))
	assert.Equal(t, f.CountKeyValue(0xAB, 1), uint64(7))
	assert.Equal(t, f.CountKey(0xAB), uint64(7))
	assert.Equal(t, f.NElts(), uint64(7))
	assert.Equal(t, f.NDistinctElts(), uint64(1))
}

func TestDistinctValuesSameRemainderCoexist(t *testing.T) {
	f := newTestFilter(t, true)

	// Two distinct (key, value) pairs that hash to the same quotient and
	// remainder must be tracked as independent entries.
	q, r := f.decompose(f.hashKey(0x555))
	hashed := f.recompose(q, r)
	key := f.unhashKey(hashed)

	assert.NoError(t, f.Insert(key, 1, 2, false))
	assert.NoError(t, f.Insert(key, 2, 5, false))

	assert.Equal(t, f.CountKeyValue(key, 1), uint64(2))
	assert.Equal(t, f.CountKeyValue(key, 2), uint64(5))
	assert.Equal(t, f.CountKey(key), uint64(7))
	assert.Equal(t, f.NDistinctElts(), uint64(2))
}

func TestRemove(t *testing.T) {
	f := newTestFilter(t, true)

	assert.NoError(t, f.Insert(0x10, 0, 5, false))
	assert.NoError(t, f.Remove(0x10, 0, 3, false))
	assert.Equal(t, f.CountKeyValue(0x10, 0), uint64(2))

	assert.NoError(t, f.Remove(0x10, 0, 2, false))
	_, found := f.Query(0x10)
	assert.That(t, !found)
	assert.Equal(t, f.NDistinctElts(), uint64(0))
}

func TestRemoveMoreThanPresentIsNotFound(t *testing.T) {
	f := newTestFilter(t, true)

	assert.NoError(t, f.Insert(0x10, 0, 2, false))
	err := f.Remove(0x10, 0, 5, false)
	assert.That(t, ErrNotFound.Has(err))
	// state unchanged
	assert.Equal(t, f.CountKeyValue(0x10, 0), uint64(2))
}

func TestSetCount(t *testing.T) {
	f := newTestFilter(t, true)

	assert.NoError(t, f.SetCount(0x20, 1, 10, false))
	assert.Equal(t, f.CountKeyValue(0x20, 1), uint64(10))

	assert.NoError(t, f.SetCount(0x20, 1, 3, false))
	assert.Equal(t, f.CountKeyValue(0x20, 1), uint64(3))
	assert.Equal(t, f.NElts(), uint64(3))

	assert.NoError(t, f.SetCount(0x20, 1, 0, false))
	_, found := f.Query(0x20)
	assert.That(t, !found)
}

func TestDeleteKeyValueRemovesWholeEntry(t *testing.T) {
	f := newTestFilter(t, true)

	assert.NoError(t, f.Insert(0x30, 1, 100, false))
	assert.NoError(t, f.DeleteKeyValue(0x30, 1, false))
	assert.Equal(t, f.CountKeyValue(0x30, 1), uint64(0))
	assert.Equal(t, f.NElts(), uint64(0))
}

func TestDeleteKeyRemovesEveryValue(t *testing.T) {
	f := newTestFilter(t, true)

	q, r := f.decompose(f.hashKey(0x40))
	key := f.unhashKey(f.recompose(q, r))

	assert.NoError(t, f.Insert(key, 1, 2, false))
	assert.NoError(t, f.Insert(key, 2, 3, false))
	assert.NoError(t, f.DeleteKey(key, false))

	assert.Equal(t, f.CountKey(key), uint64(0))
	assert.Equal(t, f.NDistinctElts(), uint64(0))
}

func TestReplace(t *testing.T) {
	f := newTestFilter(t, true)

	assert.NoError(t, f.Insert(0x50, 1, 9, false))
	assert.NoError(t, f.Replace(0x50, 1, 2, false))

	assert.Equal(t, f.CountKeyValue(0x50, 1), uint64(0))
	assert.Equal(t, f.CountKeyValue(0x50, 2), uint64(9))
}

func TestInsertNoSpaceWithoutAutoResize(t *testing.T) {
	f := newTestFilter(t, false)

	var err error
	for i := 0; i < 1<<10; i++ {
		if err = f.Insert(pcg.Uint64()&(1<<20-1), 0, 1, false); err != nil {
			break
		}
	}
	assert.That(t, ErrNoSpace.Has(err))
}

// TestInsertRunSpillingAcrossBlockDoesNotCorruptNextHome is a regression
// test for a home whose run spills exactly one slot into the next block:
// inserting the next block's own home must not mistake that spilled-over
// slot for empty and overwrite it.
func TestInsertRunSpillingAcrossBlockDoesNotCorruptNextHome(t *testing.T) {
	f, err := Malloc(Options{NSlots: 128, KeyBits: 14, HashMode: HashNone})
	assert.NoError(t, err)
	defer f.Destroy()

	key := func(q, r uint64) uint64 { return f.recompose(q, r) }

	assert.NoError(t, f.Insert(key(63, 1), 0, 1, false))
	assert.NoError(t, f.Insert(key(63, 2), 0, 1, false))
	assert.NoError(t, f.Insert(key(64, 5), 0, 1, false))

	_, found := f.Query(key(63, 2))
	assert.That(t, found)
	assert.Equal(t, f.CountKeyValue(key(63, 1), 0), uint64(1))
	assert.Equal(t, f.CountKeyValue(key(63, 2), 0), uint64(1))
	assert.Equal(t, f.CountKeyValue(key(64, 5), 0), uint64(1))
}

func TestInsertAutoResizeGrowsCapacity(t *testing.T) {
	f := newTestFilter(t, true)

	nslotsBefore := f.NSlots()
	for i := 0; i < 1<<9; i++ {
		assert.NoError(t, f.Insert(pcg.Uint64()&(1<<20-1), 0, 1, false))
	}
	assert.That(t, f.NSlots() > nslotsBefore)
}
