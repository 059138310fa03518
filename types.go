package bptree

import "bptree/internal/base"

// Key is the fixed-width index key type.
type Key = base.Key

// RID is the opaque record identifier stored at the leaves.
type RID = base.RID

// Comparator defines a total order on keys.
type Comparator = base.Comparator

// NewKey builds a Key from an integer.
func NewKey(v int64) Key {
	return base.NewKey(v)
}

// NewRID synthesizes a RID from an integer.
func NewRID(v int64) RID {
	return base.NewRID(v)
}

// CompareInt64 is the default comparator, ordering keys by their
// signed integer interpretation.
func CompareInt64(a, b Key) int {
	return base.CompareInt64(a, b)
}
