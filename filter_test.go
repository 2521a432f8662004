package cqf

import (
	"testing"

	"github.com/zeebo/assert"
)

func TestMalloc(t *testing.T) {
	f, err := Malloc(Options{NSlots: 1 << 10, KeyBits: 24, ValueBits: 4})
	assert.NoError(t, err)
	defer f.Destroy()

	assert.Equal(t, f.NSlots(), uint64(1<<10))
	assert.That(t, f.XNSlots() >= f.NSlots())
	assert.Equal(t, f.NElts(), uint64(0))
}

func TestInitTooSmallBuffer(t *testing.T) {
	need, err := RequiredBytes(1<<10, 24, 4)
	assert.NoError(t, err)

	f, n, err := Init(make([]byte, 16), Options{NSlots: 1 << 10, KeyBits: 24, ValueBits: 4})
	assert.NoError(t, err)
	assert.That(t, f == nil)
	assert.Equal(t, n, need)
}

func TestInitThenUse(t *testing.T) {
	need, err := RequiredBytes(1<<10, 24, 4)
	assert.NoError(t, err)

	buf := make([]byte, need)
	f, n, err := Init(buf, Options{NSlots: 1 << 10, KeyBits: 24, ValueBits: 4, Seed: 7})
	assert.NoError(t, err)
	assert.Equal(t, n, uint64(0))

	assert.NoError(t, f.Insert(0x1234, 3, 5, false))

	reopened, err := Use(buf, LocksForbidden, nil)
	assert.NoError(t, err)

	value, found := reopened.Query(0x1234)
	assert.That(t, found)
	assert.Equal(t, value, uint64(3))
	assert.Equal(t, reopened.CountKeyValue(0x1234, 3), uint64(5))
}

func TestInvalidParameters(t *testing.T) {
	_, err := RequiredBytes(100, 24, 4) // not a power of two
	assert.That(t, ErrInvalidParameter.Has(err))

	_, err = RequiredBytes(1<<10, 0, 4)
	assert.That(t, ErrInvalidParameter.Has(err))

	_, err = RequiredBytes(1<<40, 8, 0) // quotient bits exceed key_bits
	assert.That(t, ErrInvalidParameter.Has(err))
}

func TestReset(t *testing.T) {
	f, err := Malloc(Options{NSlots: 1 << 10, KeyBits: 24, ValueBits: 4})
	assert.NoError(t, err)
	defer f.Destroy()

	assert.NoError(t, f.Insert(1, 0, 1, false))
	assert.NoError(t, f.Insert(2, 0, 1, false))
	f.Reset()

	assert.Equal(t, f.NElts(), uint64(0))
	assert.Equal(t, f.NDistinctElts(), uint64(0))
	assert.Equal(t, f.NOccupiedSlots(), uint64(0))
	_, found := f.Query(1)
	assert.That(t, !found)
}
