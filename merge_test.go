package cqf

import (
	"testing"

	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"
)

func TestMergeUnionsCounts(t *testing.T) {
	a := newTestFilter(t, true)
	b := newTestFilter(t, true)
	dst := newTestFilter(t, true)

	assert.NoError(t, a.Insert(0x1, 0, 3, false))
	assert.NoError(t, a.Insert(0x2, 0, 1, false))
	assert.NoError(t, b.Insert(0x1, 0, 4, false))
	assert.NoError(t, b.Insert(0x3, 0, 2, false))

	assert.NoError(t, Merge(dst, a, b))

	assert.Equal(t, dst.CountKeyValue(0x1, 0), uint64(7))
	assert.Equal(t, dst.CountKeyValue(0x2, 0), uint64(1))
	assert.Equal(t, dst.CountKeyValue(0x3, 0), uint64(2))
}

func TestMultiMergeManySources(t *testing.T) {
	const sources = 5
	srcs := make([]*Filter, sources)
	want := make(map[uint64]uint64)

	for i := range srcs {
		srcs[i] = newTestFilter(t, true)
		for j := 0; j < 100; j++ {
			k := pcg.Uint64() & (1<<20 - 1)
			want[k]++
			assert.NoError(t, srcs[i].Insert(k, 0, 1, false))
		}
	}

	dst := newTestFilter(t, true)
	assert.NoError(t, MultiMerge(dst, srcs))

	for k, c := range want {
		assert.Equal(t, dst.CountKeyValue(k, 0), c)
	}
	assert.Equal(t, dst.NDistinctElts(), uint64(len(want)))
}
