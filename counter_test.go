package cqf

import (
	"testing"

	"github.com/zeebo/assert"
)

func TestCounterRoundTrip(t *testing.T) {
	slots := func(digits []uint64) func(pos uint64) uint64 {
		return func(pos uint64) uint64 {
			if pos == 0 || int(pos) > len(digits) {
				return 0
			}
			return digits[pos-1]
		}
	}

	t.Run("count one needs no digits", func(t *testing.T) {
		assert.Equal(t, len(encodeCounterDigits(5, 1)), 0)
	})

	t.Run("round trip across remainders", func(t *testing.T) {
		for r := uint64(0); r < 20; r++ {
			for count := uint64(1); count < 500; count++ {
				digits := encodeCounterDigits(r, count)
				limit := uint64(1 + len(digits))
				got, consumed := decodeRunCount(r, 0, limit, slots(digits))
				assert.Equal(t, got, count)
				assert.Equal(t, consumed, uint64(len(digits)))
			}
		}
	})

	t.Run("degenerate r=0 is unary", func(t *testing.T) {
		digits := encodeCounterDigits(0, 4)
		assert.Equal(t, len(digits), 3)
		for _, d := range digits {
			assert.Equal(t, d, uint64(0))
		}
	})

	t.Run("decode stops at first value exceeding r", func(t *testing.T) {
		slotAt := func(pos uint64) uint64 {
			switch pos {
			case 1:
				return 0
			case 2:
				return 5 // > r, not a digit
			default:
				return 0
			}
		}
		count, consumed := decodeRunCount(1, 0, 10, slotAt)
		assert.Equal(t, count, uint64(1))
		assert.Equal(t, consumed, uint64(1))
	})
}
