package cqf

import (
	"testing"

	"github.com/zeebo/assert"
)

func TestQueryAbsentKey(t *testing.T) {
	f := newTestFilter(t, true)

	_, found := f.Query(0xDEADBEEF)
	assert.That(t, !found)
	assert.Equal(t, f.CountKey(0xDEADBEEF), uint64(0))
	assert.Equal(t, f.CountKeyValue(0xDEADBEEF, 0), uint64(0))
}

func TestCountKeySumsAcrossValues(t *testing.T) {
	f := newTestFilter(t, true)

	q, r := f.decompose(f.hashKey(0x77))
	key := f.unhashKey(f.recompose(q, r))

	assert.NoError(t, f.Insert(key, 0, 2, false))
	assert.NoError(t, f.Insert(key, 3, 4, false))
	assert.NoError(t, f.Insert(key, 7, 1, false))

	assert.Equal(t, f.CountKey(key), uint64(7))
}
