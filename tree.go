package bptree

import (
	"sync"

	"bptree/internal/base"
	"bptree/internal/buffer"
	"bptree/internal/cache"
	"bptree/internal/node"
	"bptree/internal/storage"
)

// BPlusTree is a disk-resident B+tree index mapping fixed-width keys
// to record identifiers. All structural state lives in pages managed
// by the buffer pool; the tree itself holds only the root page id,
// which it persists in the header page whenever it changes.
//
// Public operations serialize on one coarse mutex. Iterators hold no
// tree lock between advances; they own a single page pin instead.
type BPlusTree struct {
	mu   sync.Mutex
	name string
	pool *buffer.Pool
	cmp  base.Comparator
	log  Logger

	rootPageID base.PageID

	leafMaxSize     int
	internalMaxSize int

	lookaside *cache.Lookaside
	closed    bool
}

// Open opens or creates the index file at path. name identifies this
// index within the file's header page, so several indexes can share
// one file.
func Open(path, name string, options ...Option) (*BPlusTree, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}

	disk, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	pool, err := buffer.NewPool(disk, opts.poolSize)
	if err != nil {
		disk.Close()
		return nil, err
	}

	t := &BPlusTree{
		name:            name,
		pool:            pool,
		cmp:             opts.comparator,
		log:             opts.logger,
		rootPageID:      base.InvalidPageID,
		leafMaxSize:     opts.leafMaxSize,
		internalMaxSize: opts.internalMaxSize,
	}

	headerPage, err := pool.FetchPage(base.HeaderPageID)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if root, ok := base.AsHeader(headerPage).GetRootPageID(name); ok {
		t.rootPageID = root
	}
	if err := pool.UnpinPage(base.HeaderPageID, false); err != nil {
		pool.Close()
		return nil, err
	}

	if opts.lookasideEntries > 0 {
		la, err := cache.NewLookaside(opts.lookasideEntries)
		if err != nil {
			pool.Close()
			return nil, err
		}
		t.lookaside = la
	}

	return t, nil
}

// Close flushes every dirty page and releases the file.
func (t *BPlusTree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.lookaside != nil {
		t.lookaside.Close()
	}
	return t.pool.Close()
}

// Get returns the record id stored under key, or ErrKeyNotFound.
func (t *BPlusTree) Get(key Key) (RID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return RID{}, ErrIndexClosed
	}
	if t.lookaside != nil {
		if rid, ok := t.lookaside.Get(key); ok {
			return rid, nil
		}
	}
	if !t.rootPageID.Valid() {
		return RID{}, ErrKeyNotFound
	}

	page, err := t.findLeaf(key, false)
	if err != nil {
		return RID{}, err
	}
	leaf := node.AsLeaf(page)
	rid, found := leaf.Lookup(key, t.cmp)
	if err := t.pool.UnpinPage(leaf.PageID(), false); err != nil {
		return RID{}, err
	}
	if !found {
		return RID{}, ErrKeyNotFound
	}
	if t.lookaside != nil {
		t.lookaside.Put(key, rid)
	}
	return rid, nil
}

// Insert stores (key, rid). Keys are unique; inserting an existing
// key fails with ErrDuplicateKey and leaves the tree untouched.
func (t *BPlusTree) Insert(key Key, rid RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrIndexClosed
	}

	var err error
	if !t.rootPageID.Valid() {
		err = t.startNewTree(key, rid)
	} else {
		err = t.insertIntoLeaf(key, rid)
	}
	if err != nil {
		return err
	}
	if t.lookaside != nil {
		t.lookaside.Put(key, rid)
	}
	return nil
}

// startNewTree allocates a leaf root holding the first pair.
func (t *BPlusTree) startNewTree(key Key, rid RID) error {
	id, page, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	root := node.AsLeaf(page)
	root.Init(id, base.InvalidPageID, t.leafMaxSize)
	root.Insert(key, rid, t.cmp)

	t.rootPageID = id
	if err := t.updateRootPageID(true); err != nil {
		t.pool.UnpinPage(id, true)
		return err
	}
	t.log.Info("started new tree", "index", t.name, "root", id)
	return t.pool.UnpinPage(id, true)
}

// insertIntoLeaf descends to the owning leaf and inserts in place,
// splitting when full.
func (t *BPlusTree) insertIntoLeaf(key Key, rid RID) error {
	page, err := t.findLeaf(key, false)
	if err != nil {
		return err
	}
	leaf := node.AsLeaf(page)

	if _, found := leaf.Lookup(key, t.cmp); found {
		t.pool.UnpinPage(leaf.PageID(), false)
		return ErrDuplicateKey
	}

	if leaf.Size() < leaf.MaxSize() {
		leaf.Insert(key, rid, t.cmp)
		return t.pool.UnpinPage(leaf.PageID(), true)
	}

	// Split: upper half moves to a fresh right sibling, the incoming
	// pair lands in whichever half owns its range, and the sibling's
	// first key is promoted to the parent.
	sibID, sibPage, err := t.pool.NewPage()
	if err != nil {
		t.pool.UnpinPage(leaf.PageID(), false)
		return err
	}
	sibling := node.AsLeaf(sibPage)
	sibling.Init(sibID, leaf.ParentPageID(), t.leafMaxSize)
	leaf.MoveHalfTo(sibling)
	sibling.SetNext(leaf.Next())
	leaf.SetNext(sibID)

	if t.cmp(key, sibling.KeyAt(0)) < 0 {
		leaf.Insert(key, rid, t.cmp)
	} else {
		sibling.Insert(key, rid, t.cmp)
	}

	err = t.insertIntoParent(leaf.Common, sibling.KeyAt(0), sibling.Common)
	if uerr := t.pool.UnpinPage(leaf.PageID(), true); err == nil {
		err = uerr
	}
	if uerr := t.pool.UnpinPage(sibID, true); err == nil {
		err = uerr
	}
	return err
}

// insertIntoParent links a freshly split sibling into the tree,
// splitting ancestors as needed. old and new are both pinned by the
// caller; any parent pages pinned here are unpinned here.
func (t *BPlusTree) insertIntoParent(old node.Common, key Key, newNode node.Common) error {
	if old.IsRoot() {
		rootID, rootPage, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		root := node.AsInternal(rootPage)
		root.Init(rootID, base.InvalidPageID, t.internalMaxSize)
		root.PopulateNewRoot(old.PageID(), key, newNode.PageID())
		old.SetParentPageID(rootID)
		newNode.SetParentPageID(rootID)

		t.rootPageID = rootID
		if err := t.updateRootPageID(false); err != nil {
			t.pool.UnpinPage(rootID, true)
			return err
		}
		t.log.Info("tree grew a level", "index", t.name, "root", rootID)
		return t.pool.UnpinPage(rootID, true)
	}

	parentID := old.ParentPageID()
	parentPage, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := node.AsInternal(parentPage)

	if parent.Size() < parent.MaxSize() {
		parent.InsertNodeAfter(old.PageID(), key, newNode.PageID())
		return t.pool.UnpinPage(parentID, true)
	}

	// Parent is full: split it the same way, route the pending entry
	// into the half that owns it, and recurse with the promoted key.
	sibID, sibPage, err := t.pool.NewPage()
	if err != nil {
		t.pool.UnpinPage(parentID, false)
		return err
	}
	sibling := node.AsInternal(sibPage)
	sibling.Init(sibID, parent.ParentPageID(), t.internalMaxSize)
	if err := parent.MoveHalfTo(sibling, t.pool); err != nil {
		t.pool.UnpinPage(sibID, true)
		t.pool.UnpinPage(parentID, true)
		return err
	}

	promoted := sibling.KeyAt(0)
	if t.cmp(key, promoted) < 0 {
		parent.InsertNodeAfter(old.PageID(), key, newNode.PageID())
	} else {
		sibling.InsertNodeAfter(old.PageID(), key, newNode.PageID())
		newNode.SetParentPageID(sibID)
	}

	err = t.insertIntoParent(parent.Common, promoted, sibling.Common)
	if uerr := t.pool.UnpinPage(sibID, true); err == nil {
		err = uerr
	}
	if uerr := t.pool.UnpinPage(parentID, true); err == nil {
		err = uerr
	}
	return err
}

// Remove deletes key from the index. Removing an absent key is a
// no-op.
func (t *BPlusTree) Remove(key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrIndexClosed
	}
	if t.lookaside != nil {
		t.lookaside.Invalidate(key)
	}
	if !t.rootPageID.Valid() {
		return nil
	}

	page, err := t.findLeaf(key, false)
	if err != nil {
		return err
	}
	leaf := node.AsLeaf(page)
	if _, found := leaf.Lookup(key, t.cmp); !found {
		return t.pool.UnpinPage(leaf.PageID(), false)
	}
	leaf.Remove(key, t.cmp)
	return t.coalesceOrRedistribute(page)
}

// coalesceOrRedistribute restores the fill invariant on a page whose
// slot count just shrank. It takes over the caller's pin: on every
// path the page is unpinned exactly once, or unpinned and deleted
// when it merges away.
func (t *BPlusTree) coalesceOrRedistribute(page *base.Page) error {
	c := node.AsCommon(page)
	id := c.PageID()

	if c.Size() >= c.MinSize() {
		return t.pool.UnpinPage(id, true)
	}

	if c.IsRoot() {
		if c.IsLeaf() && c.Size() == 0 {
			// Last key removed from the whole tree.
			t.rootPageID = base.InvalidPageID
			if err := t.updateRootPageID(false); err != nil {
				t.pool.UnpinPage(id, true)
				return err
			}
			t.log.Info("tree emptied", "index", t.name)
			if err := t.pool.UnpinPage(id, true); err != nil {
				return err
			}
			return t.pool.DeletePage(id)
		}
		if !c.IsLeaf() && c.Size() == 1 {
			return t.adjustRoot(page)
		}
		return t.pool.UnpinPage(id, true)
	}

	parentID := c.ParentPageID()
	parentPage, err := t.pool.FetchPage(parentID)
	if err != nil {
		t.pool.UnpinPage(id, true)
		return err
	}
	parent := node.AsInternal(parentPage)

	// Prefer the left sibling; only the leftmost child pairs with its
	// right neighbor.
	idx := parent.ValueIndex(id)
	useRight := idx == 0
	sibIdx := idx - 1
	if useRight {
		sibIdx = idx + 1
	}
	sibID := parent.ValueAt(sibIdx)
	sibPage, err := t.pool.FetchPage(sibID)
	if err != nil {
		t.pool.UnpinPage(id, true)
		t.pool.UnpinPage(parentID, false)
		return err
	}
	sib := node.AsCommon(sibPage)

	if c.Size()+sib.Size() <= c.MaxSize() {
		if err := t.coalesce(page, sibPage, parent, idx, sibIdx, useRight); err != nil {
			t.pool.UnpinPage(parentID, true)
			return err
		}
		// The parent lost a slot; restore its invariant next.
		return t.coalesceOrRedistribute(parentPage)
	}

	err = t.redistribute(page, sibPage, parent, idx, sibIdx, useRight)
	if uerr := t.pool.UnpinPage(id, true); err == nil {
		err = uerr
	}
	if uerr := t.pool.UnpinPage(sibID, true); err == nil {
		err = uerr
	}
	if uerr := t.pool.UnpinPage(parentID, true); err == nil {
		err = uerr
	}
	return err
}

// coalesce merges the right-hand page of the pair into the left-hand
// one, removes the emptied page's slot from the parent, and frees it.
// Both data-page pins are released; the parent pin stays with the
// caller.
func (t *BPlusTree) coalesce(page, sibPage *base.Page, parent node.Internal, idx, sibIdx int, useRight bool) error {
	right, left := page, sibPage
	rightIdx := idx
	if useRight {
		right, left = sibPage, page
		rightIdx = sibIdx
	}
	rightID := node.AsCommon(right).PageID()
	leftID := node.AsCommon(left).PageID()

	if node.AsCommon(right).IsLeaf() {
		node.AsLeaf(right).MoveAllTo(node.AsLeaf(left))
	} else {
		middleKey := parent.KeyAt(rightIdx)
		if err := node.AsInternal(right).MoveAllTo(node.AsInternal(left), middleKey, t.pool); err != nil {
			t.pool.UnpinPage(leftID, true)
			t.pool.UnpinPage(rightID, true)
			return err
		}
	}
	parent.Remove(rightIdx)

	if err := t.pool.UnpinPage(leftID, true); err != nil {
		t.pool.UnpinPage(rightID, true)
		return err
	}
	if err := t.pool.UnpinPage(rightID, true); err != nil {
		return err
	}
	return t.pool.DeletePage(rightID)
}

// redistribute rotates one entry from the sibling into the underfull
// page and rewrites the separator between them. Never recurses.
func (t *BPlusTree) redistribute(page, sibPage *base.Page, parent node.Internal, idx, sibIdx int, useRight bool) error {
	if node.AsCommon(page).IsLeaf() {
		leaf, sib := node.AsLeaf(page), node.AsLeaf(sibPage)
		if useRight {
			parent.SetKeyAt(sibIdx, sib.MoveFirstToEndOf(leaf))
		} else {
			parent.SetKeyAt(idx, sib.MoveLastToFrontOf(leaf))
		}
		return nil
	}

	in, sib := node.AsInternal(page), node.AsInternal(sibPage)
	if useRight {
		newSep, err := sib.MoveFirstToEndOf(in, parent.KeyAt(sibIdx), t.pool)
		if err != nil {
			return err
		}
		parent.SetKeyAt(sibIdx, newSep)
	} else {
		newSep, err := sib.MoveLastToFrontOf(in, parent.KeyAt(idx), t.pool)
		if err != nil {
			return err
		}
		parent.SetKeyAt(idx, newSep)
	}
	return nil
}

// adjustRoot promotes the sole remaining child of a shrunken internal
// root and frees the old root page. Consumes the old root's pin.
func (t *BPlusTree) adjustRoot(page *base.Page) error {
	oldRoot := node.AsInternal(page)
	oldRootID := oldRoot.PageID()
	newRootID := oldRoot.ValueAt(0)

	t.rootPageID = newRootID
	if err := t.updateRootPageID(false); err != nil {
		t.pool.UnpinPage(oldRootID, true)
		return err
	}

	childPage, err := t.pool.FetchPage(newRootID)
	if err != nil {
		t.pool.UnpinPage(oldRootID, true)
		return err
	}
	node.AsCommon(childPage).SetParentPageID(base.InvalidPageID)
	if err := t.pool.UnpinPage(newRootID, true); err != nil {
		t.pool.UnpinPage(oldRootID, true)
		return err
	}

	t.log.Info("tree shrank a level", "index", t.name, "root", newRootID)
	if err := t.pool.UnpinPage(oldRootID, true); err != nil {
		return err
	}
	return t.pool.DeletePage(oldRootID)
}

// findLeaf descends from the root to the leaf owning key (or the
// leftmost leaf). The returned page is pinned; the caller unpins.
func (t *BPlusTree) findLeaf(key Key, leftmost bool) (*base.Page, error) {
	id := t.rootPageID
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, err
	}
	for {
		c := node.AsCommon(page)
		if c.IsLeaf() {
			return page, nil
		}
		in := node.AsInternal(page)
		var next base.PageID
		if leftmost {
			next = in.ValueAt(0)
		} else {
			next = in.Lookup(key, t.cmp)
		}
		if err := t.pool.UnpinPage(id, false); err != nil {
			return nil, err
		}
		id = next
		page, err = t.pool.FetchPage(id)
		if err != nil {
			return nil, err
		}
	}
}

// updateRootPageID persists the root page id in the header page.
// insertRecord is true the first time this index records a root.
func (t *BPlusTree) updateRootPageID(insertRecord bool) error {
	headerPage, err := t.pool.FetchPage(base.HeaderPageID)
	if err != nil {
		return err
	}
	header := base.AsHeader(headerPage)
	if insertRecord {
		err = header.InsertRecord(t.name, t.rootPageID)
	} else {
		err = header.UpdateRecord(t.name, t.rootPageID)
	}
	if uerr := t.pool.UnpinPage(base.HeaderPageID, true); err == nil {
		err = uerr
	}
	return err
}
