package node

import (
	"encoding/binary"

	"bptree/internal/base"
)

// Internal is a view over an internal (routing) page. Slot 0 carries
// only a child pointer; slots 1..size-1 carry (separator, child)
// pairs. Size counts child pointers, so a valid non-root internal has
// size >= 2.
type Internal struct {
	Common
}

// AsInternal wraps a pinned internal page.
func AsInternal(p *base.Page) Internal {
	return Internal{Common: AsCommon(p)}
}

// Init formats the page as an internal node holding a single,
// not-yet-populated child slot. maxSize <= 0 derives the capacity
// from the page size.
func (n Internal) Init(id, parent base.PageID, maxSize int) {
	n.setType(InternalPage)
	n.setPageID(id)
	n.SetParentPageID(parent)
	n.SetSize(1)
	if maxSize <= 0 {
		maxSize = InternalMaxSlots
	}
	n.setMaxSize(maxSize)
}

func (n Internal) slot(i int) []byte {
	off := HeaderSize + i*InternalSlotSize
	return n.page.Data[off : off+InternalSlotSize]
}

// KeyAt returns the separator key in slot i. Slot 0's key is invalid
// and never compared.
func (n Internal) KeyAt(i int) base.Key {
	var k base.Key
	copy(k[:], n.slot(i)[:base.KeySize])
	return k
}

// SetKeyAt overwrites the separator key in slot i.
func (n Internal) SetKeyAt(i int, k base.Key) {
	copy(n.slot(i)[:base.KeySize], k[:])
}

// ValueAt returns the child page id in slot i.
func (n Internal) ValueAt(i int) base.PageID {
	return base.PageID(binary.LittleEndian.Uint64(n.slot(i)[base.KeySize:]))
}

// SetValueAt overwrites the child page id in slot i.
func (n Internal) SetValueAt(i int, v base.PageID) {
	binary.LittleEndian.PutUint64(n.slot(i)[base.KeySize:], uint64(v))
}

func (n Internal) copySlot(dst int, src Internal, from int) {
	copy(n.slot(dst), src.slot(from))
}

// ValueIndex scans for the slot whose child pointer equals v. It
// returns 0 when absent; callers rely on the non-negative result when
// they compute a left-sibling index before excluding the absent case.
func (n Internal) ValueIndex(v base.PageID) int {
	for i := 0; i < n.Size(); i++ {
		if n.ValueAt(i) == v {
			return i
		}
	}
	return 0
}

// Lookup routes key to the child whose range covers it: the child
// before the first separator greater than key, or the last child.
func (n Internal) Lookup(key base.Key, cmp base.Comparator) base.PageID {
	for i := 1; i < n.Size(); i++ {
		if cmp(key, n.KeyAt(i)) < 0 {
			return n.ValueAt(i - 1)
		}
	}
	return n.ValueAt(n.Size() - 1)
}

// PopulateNewRoot fills a freshly initialized root: the pre-split
// child in slot 0, the promoted separator and the new child in slot 1.
func (n Internal) PopulateNewRoot(oldChild base.PageID, newKey base.Key, newChild base.PageID) {
	n.SetValueAt(0, oldChild)
	n.SetKeyAt(1, newKey)
	n.SetValueAt(1, newChild)
	n.SetSize(2)
}

// InsertNodeAfter places (newKey, newChild) immediately after the
// slot whose child equals oldChild, shifting later slots right, and
// returns the new size. oldChild must be present; anything else is
// undefined input.
func (n Internal) InsertNodeAfter(oldChild base.PageID, newKey base.Key, newChild base.PageID) int {
	i := n.Size()
	for ; i > 0; i-- {
		if n.ValueAt(i-1) == oldChild {
			break
		}
		n.copySlot(i, n, i-1)
	}
	n.SetKeyAt(i, newKey)
	n.SetValueAt(i, newChild)
	n.IncSize(1)
	return n.Size()
}

// Remove deletes slot i, keeping the array dense.
func (n Internal) Remove(i int) {
	for j := i + 1; j < n.Size(); j++ {
		n.copySlot(j-1, n, j)
	}
	n.IncSize(-1)
}

// MoveHalfTo relocates the upper half of the slots to an empty,
// freshly initialized sibling and re-parents every moved child. After
// the move, dst.KeyAt(0) holds the separator the caller promotes to
// the parent; it is invalid within dst afterwards.
func (n Internal) MoveHalfTo(dst Internal, bp Pinner) error {
	half := n.Size() / 2
	start := n.Size() - half
	for i := 0; i < half; i++ {
		dst.copySlot(i, n, start+i)
		if err := reparent(bp, dst.ValueAt(i), dst.PageID()); err != nil {
			return err
		}
	}
	dst.SetSize(half)
	n.IncSize(-half)
	return nil
}

// MoveAllTo appends every slot to dst (the left neighbor in key
// order) and re-parents the moved children. middleKey is the parent
// separator that used to divide the two pages; it becomes the key of
// the first moved slot. The caller removes this page's slot from the
// parent afterwards.
func (n Internal) MoveAllTo(dst Internal, middleKey base.Key, bp Pinner) error {
	n.SetKeyAt(0, middleKey)
	start := dst.Size()
	sz := n.Size()
	for i := 0; i < sz; i++ {
		dst.copySlot(start+i, n, i)
		if err := reparent(bp, n.ValueAt(i), dst.PageID()); err != nil {
			return err
		}
	}
	dst.IncSize(sz)
	n.SetSize(0)
	return nil
}

// MoveFirstToEndOf rotates this page's first child to the end of dst
// (the left neighbor). middleKey is the current parent separator
// indexing this page; the rotated pair enters dst keyed by it. The
// returned key is the new separator the caller writes back to the
// parent.
func (n Internal) MoveFirstToEndOf(dst Internal, middleKey base.Key, bp Pinner) (base.Key, error) {
	child := n.ValueAt(0)
	dst.SetKeyAt(dst.Size(), middleKey)
	dst.SetValueAt(dst.Size(), child)
	dst.IncSize(1)
	if err := reparent(bp, child, dst.PageID()); err != nil {
		return base.Key{}, err
	}

	newSep := n.KeyAt(1)
	n.Remove(0)
	return newSep, nil
}

// MoveLastToFrontOf rotates this page's last child to the front of
// dst (the right neighbor). middleKey is the current parent separator
// indexing dst; it becomes the key of dst's shifted former first
// slot. The returned key, the rotated pair's own separator, is the
// new parent separator for dst.
func (n Internal) MoveLastToFrontOf(dst Internal, middleKey base.Key, bp Pinner) (base.Key, error) {
	last := n.Size() - 1
	newSep := n.KeyAt(last)
	child := n.ValueAt(last)
	n.IncSize(-1)

	for i := dst.Size(); i > 0; i-- {
		dst.copySlot(i, dst, i-1)
	}
	dst.SetKeyAt(1, middleKey)
	dst.SetValueAt(0, child)
	dst.IncSize(1)
	if err := reparent(bp, child, dst.PageID()); err != nil {
		return base.Key{}, err
	}
	return newSep, nil
}
