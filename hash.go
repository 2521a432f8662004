package cqf

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashMode selects how a caller-supplied key is turned into the hashed
// value the filter actually stores (spec §4.5, §6).
type HashMode uint8

const (
	// HashDefault hashes (key, seed) with a one-way 64-bit hash. Iteration
	// cannot recover the original key, only the hashed value.
	HashDefault HashMode = iota

	// HashInvertible uses a bijective hash over the key space, so an
	// iterator can recover the exact original key.
	HashInvertible

	// HashNone treats the key as already hashed; the filter stores it
	// unmodified.
	HashNone
)

func (m HashMode) String() string {
	switch m {
	case HashDefault:
		return "default"
	case HashInvertible:
		return "invertible"
	case HashNone:
		return "none"
	default:
		return "unknown"
	}
}

// hashKey maps key into the filter's key space (the low keyBits bits of a
// uint64) according to the filter's hash mode.
func (f *Filter) hashKey(key uint64) uint64 {
	switch f.hdr.HashMode {
	case HashNone:
		return key & keyMask(f.hdr.KeyBits)
	case HashInvertible:
		return feistelEncrypt(key, f.hdr.Seed, uint(f.hdr.KeyBits))
	default:
		return defaultHash(key, f.hdr.Seed) & keyMask(f.hdr.KeyBits)
	}
}

// unhashKey is the inverse of hashKey, used only when HashMode is
// HashInvertible (spec §4.5, "inverts the hash if hash_mode == invertible").
func (f *Filter) unhashKey(hashed uint64) uint64 {
	if f.hdr.HashMode == HashInvertible {
		return feistelDecrypt(hashed, f.hdr.Seed, uint(f.hdr.KeyBits))
	}
	return hashed
}

func keyMask(keyBits uint64) uint64 {
	if keyBits >= 64 {
		return ^uint64(0)
	}
	return 1<<keyBits - 1
}

// defaultHash is the HashDefault strategy: xxhash of the key salted by
// seed. xxhash.Sum64 is the 64-bit hash the rest of the retrieved pack
// reaches for in production code (greatroar-blobloom's benchmark harness,
// the swarmguard blockchain service) rather than a hand-rolled FNV.
func defaultHash(key uint64, seed uint32) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], key)
	binary.LittleEndian.PutUint32(buf[8:], seed)
	return xxhash.Sum64(buf[:])
}

// feistelEncrypt/feistelDecrypt implement a small fixed-round Feistel
// network, giving a bijection over the low n bits of a uint64. No library
// in the retrieved pack supplies a reversible hash (xxhash, FNV, and the
// hashing used throughout the pack are all one-way), so this is hand-rolled
// — see DESIGN.md / SPEC_FULL.md for the justification.
//
// feistelCore requires an even width so the key splits into two equal
// halves. An odd n peels off one extra bit first and flips it using a bit
// of the even-width core's output, a standard reversible extension: both
// directions recompute the same flip from the same core value, so the
// construction stays a bijection over all n bits.
func feistelEncrypt(key uint64, seed uint32, n uint) uint64 {
	key &= mask64(n)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		top := key >> (n - 1) & 1
		enc := feistelCore(key&mask64(n-1), seed, n-1, false)
		top ^= enc & 1
		return top<<(n-1) | enc
	}
	return feistelCore(key, seed, n, false)
}

func feistelDecrypt(key uint64, seed uint32, n uint) uint64 {
	key &= mask64(n)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		top := key >> (n - 1) & 1
		enc := key & mask64(n-1)
		top ^= enc & 1
		lower := feistelCore(enc, seed, n-1, true)
		return top<<(n-1) | lower
	}
	return feistelCore(key, seed, n, true)
}

func mask64(bits uint) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return 1<<bits - 1
}

// feistelCore is a balanced Feistel network over an even width n.
func feistelCore(key uint64, seed uint32, n uint, decrypt bool) uint64 {
	half := n / 2

	round := func(r uint64, i int) uint64 {
		x := r*0x9E3779B97F4A7C15 + uint64(seed) + uint64(i)*0xBF58476D1CE4E5B9
		x ^= x >> 29
		x *= 0x94D049BB133111EB
		x ^= x >> 32
		return x & mask64(half)
	}

	l := key >> half & mask64(half)
	r := key & mask64(half)

	const rounds = 4
	if !decrypt {
		for i := 0; i < rounds; i++ {
			l, r = r, l^round(r, i)
		}
	} else {
		for i := rounds - 1; i >= 0; i-- {
			l, r = r^round(l, i), l
		}
	}

	return l<<half | r
}
