package node

import (
	"encoding/binary"
	"sort"

	"bptree/internal/base"
)

// Leaf is a view over a leaf page: a dense array of (key, RID) pairs
// in ascending key order plus a forward sibling pointer.
type Leaf struct {
	Common
}

// AsLeaf wraps a pinned leaf page.
func AsLeaf(p *base.Page) Leaf {
	return Leaf{Common: AsCommon(p)}
}

// Init formats the page as an empty leaf. maxSize <= 0 derives the
// capacity from the page size.
func (l Leaf) Init(id, parent base.PageID, maxSize int) {
	l.setType(LeafPage)
	l.setPageID(id)
	l.SetParentPageID(parent)
	l.SetSize(0)
	if maxSize <= 0 {
		maxSize = LeafMaxSlots
	}
	l.setMaxSize(maxSize)
	l.SetNext(base.InvalidPageID)
}

// Next returns the forward sibling, InvalidPageID at the rightmost
// leaf.
func (l Leaf) Next() base.PageID {
	return base.PageID(binary.LittleEndian.Uint64(l.page.Data[HeaderSize : HeaderSize+8]))
}

// SetNext rewrites the forward sibling pointer.
func (l Leaf) SetNext(id base.PageID) {
	binary.LittleEndian.PutUint64(l.page.Data[HeaderSize:HeaderSize+8], uint64(id))
}

func (l Leaf) slot(i int) []byte {
	off := LeafHeaderSize + i*LeafSlotSize
	return l.page.Data[off : off+LeafSlotSize]
}

// KeyAt returns the key in slot i.
func (l Leaf) KeyAt(i int) base.Key {
	var k base.Key
	copy(k[:], l.slot(i)[:base.KeySize])
	return k
}

// RIDAt returns the record id in slot i.
func (l Leaf) RIDAt(i int) base.RID {
	return base.DecodeRID(l.slot(i)[base.KeySize:])
}

func (l Leaf) setPair(i int, k base.Key, r base.RID) {
	s := l.slot(i)
	copy(s[:base.KeySize], k[:])
	base.EncodeRID(s[base.KeySize:], r)
}

func (l Leaf) copySlot(dst int, src Leaf, from int) {
	copy(l.slot(dst), src.slot(from))
}

// Lookup binary-searches for key and returns the paired record id iff
// an exact match exists.
func (l Leaf) Lookup(key base.Key, cmp base.Comparator) (base.RID, bool) {
	n := l.Size()
	if n == 0 || cmp(key, l.KeyAt(0)) < 0 || cmp(key, l.KeyAt(n-1)) > 0 {
		return base.RID{}, false
	}
	low, high := 0, n-1
	for low <= high {
		mid := low + (high-low)/2
		switch c := cmp(key, l.KeyAt(mid)); {
		case c > 0:
			low = mid + 1
		case c < 0:
			high = mid - 1
		default:
			return l.RIDAt(mid), true
		}
	}
	return base.RID{}, false
}

// KeyIndex returns the smallest slot index whose key is >= key, or
// Size() if every key is smaller. Used to position iterators.
func (l Leaf) KeyIndex(key base.Key, cmp base.Comparator) int {
	return sort.Search(l.Size(), func(i int) bool {
		return cmp(l.KeyAt(i), key) >= 0
	})
}

// Insert places (key, rid) in key order and returns the new size.
// The caller guarantees the key is absent and the page has room.
func (l Leaf) Insert(key base.Key, rid base.RID, cmp base.Comparator) int {
	i := l.Size() - 1
	for i >= 0 && cmp(key, l.KeyAt(i)) < 0 {
		l.copySlot(i+1, l, i)
		i--
	}
	l.setPair(i+1, key, rid)
	l.IncSize(1)
	return l.Size()
}

// Remove deletes the pair matching key, keeping the array dense, and
// returns the resulting size. Absent keys leave the page untouched.
func (l Leaf) Remove(key base.Key, cmp base.Comparator) int {
	n := l.Size()
	if n == 0 || cmp(key, l.KeyAt(0)) < 0 || cmp(key, l.KeyAt(n-1)) > 0 {
		return n
	}
	low, high := 0, n-1
	for low <= high {
		mid := low + (high-low)/2
		switch c := cmp(key, l.KeyAt(mid)); {
		case c > 0:
			low = mid + 1
		case c < 0:
			high = mid - 1
		default:
			for i := mid + 1; i < n; i++ {
				l.copySlot(i-1, l, i)
			}
			l.IncSize(-1)
			return l.Size()
		}
	}
	return n
}

// MoveHalfTo relocates the upper half of the pairs to an empty, freshly
// initialized sibling.
func (l Leaf) MoveHalfTo(dst Leaf) {
	half := l.Size() / 2
	start := l.Size() - half
	for i := 0; i < half; i++ {
		dst.copySlot(i, l, start+i)
	}
	dst.SetSize(half)
	l.IncSize(-half)
}

// MoveAllTo appends every pair to dst and hands over the sibling
// pointer, leaving the page empty. dst must be the left neighbor in
// key order.
func (l Leaf) MoveAllTo(dst Leaf) {
	start := dst.Size()
	n := l.Size()
	for i := 0; i < n; i++ {
		dst.copySlot(start+i, l, i)
	}
	dst.IncSize(n)
	dst.SetNext(l.Next())
	l.SetSize(0)
}

// MoveFirstToEndOf pops the leftmost pair and appends it to dst (the
// left neighbor). It returns the page's new first key, which becomes
// the parent separator indexing this page.
func (l Leaf) MoveFirstToEndOf(dst Leaf) base.Key {
	dst.setPair(dst.Size(), l.KeyAt(0), l.RIDAt(0))
	dst.IncSize(1)

	n := l.Size()
	for i := 1; i < n; i++ {
		l.copySlot(i-1, l, i)
	}
	l.IncSize(-1)
	return l.KeyAt(0)
}

// MoveLastToFrontOf pops the rightmost pair and prepends it to dst
// (the right neighbor). It returns the moved key, which becomes the
// parent separator indexing dst.
func (l Leaf) MoveLastToFrontOf(dst Leaf) base.Key {
	last := l.Size() - 1
	key, rid := l.KeyAt(last), l.RIDAt(last)
	l.IncSize(-1)

	for i := dst.Size(); i > 0; i-- {
		dst.copySlot(i, dst, i-1)
	}
	dst.setPair(0, key, rid)
	dst.IncSize(1)
	return key
}
