package cqf

import (
	"testing"

	"github.com/zeebo/assert"
)

func TestInnerProductAndMagnitude(t *testing.T) {
	a := newTestFilter(t, true)
	b := newTestFilter(t, true)

	assert.NoError(t, a.Insert(0x1, 0, 2, false))
	assert.NoError(t, a.Insert(0x2, 0, 3, false))
	assert.NoError(t, b.Insert(0x1, 0, 5, false))
	assert.NoError(t, b.Insert(0x3, 0, 7, false))

	// shared entry: key 0x1 with counts 2 and 5 -> 10
	assert.Equal(t, InnerProduct(a, b), uint64(10))

	assert.Equal(t, Magnitude(a), uint64(2*2+3*3))
	assert.Equal(t, InnerProduct(a, a), Magnitude(a))
}
