package cqf

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/bits"
)

// headerMagic identifies a serialized CQF file, the way zqcow2's QCOW_MAGIC
// guards against opening an unrelated file (zchee-go-qcow2/header.go).
// Spells "QFC1" in ASCII.
const headerMagic uint32 = 0x51464331

// headerVersion is bumped whenever the on-disk Header or block layout
// changes in an incompatible way. Per spec §1 Non-goals, there is no
// promise of stability across endianness or slot widths; this just lets
// UseFile fail loudly (corruption) instead of silently misinterpreting
// a foreign file.
const headerVersion uint16 = 1

// Header is the persisted prefix of a filter: every piece of process-wide
// state the implementation needs to interpret the blocks that follow it on
// disk (spec §3, "Filter header"; DESIGN NOTES "Global state: None required").
type Header struct {
	Magic   uint32
	Version uint16

	HashMode   HashMode
	AutoResize bool
	Seed       uint32

	NSlots  uint64
	XNSlots uint64

	KeyBits   uint64
	ValueBits uint64

	KeyRemainderBits uint64
	BitsPerSlot      uint64

	// RangeHi, RangeLo together hold 2^KeyBits as a 128-bit integer
	// (RangeHi:RangeLo), since KeyBits can be up to 64.
	RangeHi uint64
	RangeLo uint64

	NBlocks uint64

	NElts          uint64
	NDistinctElts  uint64
	NOccupiedSlots uint64
}

// headerByteSize is the fixed size, in bytes, of the encoded Header.
var headerByteSize = binary.Size(encodedHeader{})

// encodedHeader is the on-the-wire representation: every field forced to a
// fixed-width integer type so binary.Write/Read never has to reason about
// bool or named-type widths.
type encodedHeader struct {
	Magic      uint32
	Version    uint16
	HashMode   uint8
	AutoResize uint8
	Seed       uint32

	NSlots  uint64
	XNSlots uint64

	KeyBits   uint64
	ValueBits uint64

	KeyRemainderBits uint64
	BitsPerSlot      uint64

	RangeHi uint64
	RangeLo uint64

	NBlocks uint64

	NElts          uint64
	NDistinctElts  uint64
	NOccupiedSlots uint64
}

func (h Header) encode() encodedHeader {
	var autoResize uint8
	if h.AutoResize {
		autoResize = 1
	}
	return encodedHeader{
		Magic:            h.Magic,
		Version:          h.Version,
		HashMode:         uint8(h.HashMode),
		AutoResize:       autoResize,
		Seed:             h.Seed,
		NSlots:           h.NSlots,
		XNSlots:          h.XNSlots,
		KeyBits:          h.KeyBits,
		ValueBits:        h.ValueBits,
		KeyRemainderBits: h.KeyRemainderBits,
		BitsPerSlot:      h.BitsPerSlot,
		RangeHi:          h.RangeHi,
		RangeLo:          h.RangeLo,
		NBlocks:          h.NBlocks,
		NElts:            h.NElts,
		NDistinctElts:    h.NDistinctElts,
		NOccupiedSlots:   h.NOccupiedSlots,
	}
}

func (e encodedHeader) decode() Header {
	return Header{
		Magic:            e.Magic,
		Version:          e.Version,
		HashMode:         HashMode(e.HashMode),
		AutoResize:       e.AutoResize != 0,
		Seed:             e.Seed,
		NSlots:           e.NSlots,
		XNSlots:          e.XNSlots,
		KeyBits:          e.KeyBits,
		ValueBits:        e.ValueBits,
		KeyRemainderBits: e.KeyRemainderBits,
		BitsPerSlot:      e.BitsPerSlot,
		RangeHi:          e.RangeHi,
		RangeLo:          e.RangeLo,
		NBlocks:          e.NBlocks,
		NElts:            e.NElts,
		NDistinctElts:    e.NDistinctElts,
		NOccupiedSlots:   e.NOccupiedSlots,
	}
}

func marshalHeader(h Header) []byte {
	var buf bytes.Buffer
	buf.Grow(headerByteSize)
	_ = binary.Write(&buf, binary.LittleEndian, h.encode())
	return buf.Bytes()
}

func unmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < headerByteSize {
		return Header{}, ErrCorruption.New("header truncated: have %d bytes, need %d", len(buf), headerByteSize)
	}
	var e encodedHeader
	if err := binary.Read(bytes.NewReader(buf[:headerByteSize]), binary.LittleEndian, &e); err != nil {
		return Header{}, ErrCorruption.Wrap(err)
	}
	h := e.decode()
	if h.Magic != headerMagic {
		return Header{}, ErrCorruption.New("bad magic: got %#x want %#x", h.Magic, headerMagic)
	}
	if h.Version != headerVersion {
		return Header{}, ErrCorruption.New("unsupported version: got %d want %d", h.Version, headerVersion)
	}
	return h, nil
}

// layout holds the derived, non-persisted sizing of a filter, computed once
// from (nslots, keyBits, valueBits) per spec §4.3.
type layout struct {
	nslots, xnslots    uint64
	keyBits, valueBits uint64
	keyRemainderBits   uint64
	bitsPerSlot        uint64
	nblocks            uint64
	blockBytes         uint64
	totalSizeInBytes   uint64
}

// computeLayout validates (nslots, keyBits, valueBits) per spec §4.3 and
// derives every size the rest of the package needs.
func computeLayout(nslots, keyBits, valueBits uint64) (layout, error) {
	if nslots < 1<<6 || nslots&(nslots-1) != 0 {
		return layout{}, ErrInvalidParameter.New("nslots must be a power of two >= 64, got %d", nslots)
	}
	if keyBits == 0 || keyBits > 64 {
		return layout{}, ErrInvalidParameter.New("key_bits must be in [1,64], got %d", keyBits)
	}
	quotientBits := uint64(bits.TrailingZeros64(nslots))
	if quotientBits > keyBits {
		return layout{}, ErrInvalidParameter.New("log2(nslots)=%d exceeds key_bits=%d", quotientBits, keyBits)
	}

	keyRemainderBits := keyBits - quotientBits
	bitsPerSlot := keyRemainderBits + valueBits
	if bitsPerSlot == 0 || bitsPerSlot > 56 {
		return layout{}, ErrInvalidParameter.New("bits_per_slot must be in [1,56], got %d (increase key_bits or reduce value_bits)", bitsPerSlot)
	}

	xnslots := computeXNSlots(nslots)
	nblocks := xnslots / slotsPerBlock
	blockBytes := uint64(blockSize(uint(bitsPerSlot)))

	return layout{
		nslots:           nslots,
		xnslots:          xnslots,
		keyBits:          keyBits,
		valueBits:        valueBits,
		keyRemainderBits: keyRemainderBits,
		bitsPerSlot:      bitsPerSlot,
		nblocks:          nblocks,
		blockBytes:       blockBytes,
		totalSizeInBytes: uint64(headerByteSize) + nblocks*blockBytes,
	}, nil
}

// computeXNSlots derives the physical slot count: the logical count plus a
// tail of 10*sqrt(nslots) slots to absorb overflow from runs whose home
// slot is near the end (spec §3), rounded up to a multiple of the block
// size (64 slots).
func computeXNSlots(nslots uint64) uint64 {
	extra := uint64(math.Ceil(10 * math.Sqrt(float64(nslots))))
	total := nslots + extra
	if rem := total % slotsPerBlock; rem != 0 {
		total += slotsPerBlock - rem
	}
	return total
}

// RequiredBytes reports the buffer size, in bytes, that Init needs to be
// given (or will report as the "bytes needed" return value) for the given
// parameters (spec §4.3, §6).
func RequiredBytes(nslots, keyBits, valueBits uint64) (uint64, error) {
	l, err := computeLayout(nslots, keyBits, valueBits)
	if err != nil {
		return 0, err
	}
	return l.totalSizeInBytes, nil
}
