package bptree

import (
	"bptree/internal/base"
	"bptree/internal/node"
)

// Iterator is a forward cursor over a contiguous run of leaves. It
// owns exactly one page pin at a time, the current leaf, and releases
// it when it walks off the last slot or when Close is called.
// Advancing does not take the tree mutex; mutating the tree while an
// iterator is open invalidates it.
type Iterator struct {
	tree  *BPlusTree
	page  *base.Page // pinned current leaf, nil once exhausted
	leaf  node.Leaf
	index int
}

// Begin positions an iterator at the first key of the index.
func (t *BPlusTree) Begin() (*Iterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrIndexClosed
	}
	if !t.rootPageID.Valid() {
		return &Iterator{tree: t}, nil
	}
	page, err := t.findLeaf(Key{}, true)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, page: page, leaf: node.AsLeaf(page)}
	return it, it.skipExhausted()
}

// BeginAt positions an iterator at the first key >= key.
func (t *BPlusTree) BeginAt(key Key) (*Iterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrIndexClosed
	}
	if !t.rootPageID.Valid() {
		return &Iterator{tree: t}, nil
	}
	page, err := t.findLeaf(key, false)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, page: page, leaf: node.AsLeaf(page)}
	it.index = it.leaf.KeyIndex(key, t.cmp)
	// The key can fall in the gap past this leaf's last slot; the
	// suffix then starts on the next leaf.
	return it, it.skipExhausted()
}

// End reports whether the cursor has advanced past the last slot of
// the last leaf.
func (it *Iterator) End() bool {
	return it.page == nil
}

// Key returns the key under the cursor.
func (it *Iterator) Key() Key {
	return it.leaf.KeyAt(it.index)
}

// RID returns the record id under the cursor.
func (it *Iterator) RID() RID {
	return it.leaf.RIDAt(it.index)
}

// Next advances the cursor one slot, hopping to the next leaf (and
// swapping the pin) at end-of-leaf.
func (it *Iterator) Next() error {
	if it.page == nil {
		return nil
	}
	it.index++
	return it.skipExhausted()
}

// Close releases the pin of a cursor abandoned before its natural
// end. Safe to call repeatedly.
func (it *Iterator) Close() error {
	if it.page == nil {
		return nil
	}
	err := it.tree.pool.UnpinPage(it.leaf.PageID(), false)
	it.page = nil
	return err
}

// skipExhausted moves to the next leaf while the index sits past the
// current leaf's slots, releasing the cursor entirely at the end of
// the chain.
func (it *Iterator) skipExhausted() error {
	for it.page != nil && it.index >= it.leaf.Size() {
		next := it.leaf.Next()
		if err := it.tree.pool.UnpinPage(it.leaf.PageID(), false); err != nil {
			it.page = nil
			return err
		}
		if !next.Valid() {
			it.page = nil
			return nil
		}
		page, err := it.tree.pool.FetchPage(next)
		if err != nil {
			it.page = nil
			return err
		}
		it.page = page
		it.leaf = node.AsLeaf(page)
		it.index = 0
	}
	return nil
}
