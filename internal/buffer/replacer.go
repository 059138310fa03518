package buffer

import (
	"container/list"

	"bptree/internal/base"
)

// lruReplacer picks eviction victims among unpinned frames,
// least-recently-unpinned first.
type lruReplacer struct {
	lru   *list.List // front = most recently unpinned
	items map[base.PageID]*list.Element
}

func newLRUReplacer() *lruReplacer {
	return &lruReplacer{
		lru:   list.New(),
		items: make(map[base.PageID]*list.Element),
	}
}

// push marks a frame evictable. A re-push refreshes its position.
func (r *lruReplacer) push(id base.PageID) {
	if elem, ok := r.items[id]; ok {
		r.lru.MoveToFront(elem)
		return
	}
	r.items[id] = r.lru.PushFront(id)
}

// remove withdraws a frame from eviction candidacy (it got pinned).
func (r *lruReplacer) remove(id base.PageID) {
	if elem, ok := r.items[id]; ok {
		r.lru.Remove(elem)
		delete(r.items, id)
	}
}

// victim pops the least recently unpinned frame.
func (r *lruReplacer) victim() (base.PageID, bool) {
	elem := r.lru.Back()
	if elem == nil {
		return base.InvalidPageID, false
	}
	id := elem.Value.(base.PageID)
	r.lru.Remove(elem)
	delete(r.items, id)
	return id, true
}

func (r *lruReplacer) len() int {
	return r.lru.Len()
}
