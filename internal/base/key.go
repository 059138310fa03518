package base

import "encoding/binary"

// KeySize is the fixed width of an index key, in bytes.
const KeySize = 8

// Key is a fixed-width index key. The byte order within a Key is
// little-endian so pages round-trip identically regardless of the
// comparator in use.
type Key [KeySize]byte

// NewKey builds a Key from an integer.
func NewKey(v int64) Key {
	var k Key
	binary.LittleEndian.PutUint64(k[:], uint64(v))
	return k
}

// Int64 decodes the key as a signed integer.
func (k Key) Int64() int64 {
	return int64(binary.LittleEndian.Uint64(k[:]))
}

// Comparator defines a total order on keys: negative if a < b, zero
// if equal, positive if a > b. Must be deterministic.
type Comparator func(a, b Key) int

// CompareInt64 orders keys by their signed integer interpretation.
// This is the default comparator.
func CompareInt64(a, b Key) int {
	av, bv := a.Int64(), b.Int64()
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}
