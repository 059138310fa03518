package bptree

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bptree/internal/base"
	"bptree/internal/node"
)

func setup(t *testing.T, options ...Option) *BPlusTree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	tree, err := Open(path, "test_index", options...)
	require.NoError(t, err)
	t.Cleanup(func() { tree.Close() })
	return tree
}

// small builds a tree with fan-out 4 everywhere, matching the
// boundary scenarios.
func small(t *testing.T) *BPlusTree {
	t.Helper()
	return setup(t, WithLeafMaxSize(4), WithInternalMaxSize(4))
}

func insertRange(t *testing.T, tree *BPlusTree, from, to int64) {
	t.Helper()
	for v := from; v <= to; v++ {
		require.NoError(t, tree.Insert(NewKey(v), NewRID(v)))
	}
}

// contents walks the leaf chain and returns every key in order.
func contents(t *testing.T, tree *BPlusTree) []int64 {
	t.Helper()
	it, err := tree.Begin()
	require.NoError(t, err)
	var out []int64
	for ; !it.End(); require.NoError(t, it.Next()) {
		out = append(out, it.Key().Int64())
	}
	return out
}

func seq(from, to int64) []int64 {
	out := make([]int64, 0, to-from+1)
	for v := from; v <= to; v++ {
		out = append(out, v)
	}
	return out
}

// treeHeight counts levels down the leftmost spine.
func treeHeight(t *testing.T, tree *BPlusTree) int {
	t.Helper()
	if !tree.rootPageID.Valid() {
		return 0
	}
	height := 0
	id := tree.rootPageID
	for {
		page, err := tree.pool.FetchPage(id)
		require.NoError(t, err)
		c := node.AsCommon(page)
		height++
		leaf := c.IsLeaf()
		var next base.PageID
		if !leaf {
			next = node.AsInternal(page).ValueAt(0)
		}
		require.NoError(t, tree.pool.UnpinPage(id, false))
		if leaf {
			return height
		}
		id = next
	}
}

func TestEmptyTree(t *testing.T) {
	t.Parallel()

	tree := small(t)
	_, err := tree.Get(NewKey(1))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.NoError(t, tree.Remove(NewKey(1)))
	assert.Empty(t, contents(t, tree))
	checkInvariants(t, tree)
}

func TestSingleLeafRoot(t *testing.T) {
	t.Parallel()

	tree := small(t)
	insertRange(t, tree, 1, 4)
	assert.Equal(t, 1, treeHeight(t, tree))
	assert.Equal(t, seq(1, 4), contents(t, tree))

	rid, err := tree.Get(NewKey(3))
	require.NoError(t, err)
	assert.Equal(t, NewRID(3), rid)
	checkInvariants(t, tree)
}

func TestRootLeafSplit(t *testing.T) {
	t.Parallel()

	// Boundary scenario: the fifth insert splits the root leaf into
	// [1 2] and [3 4 5] under a fresh internal root with separator 3.
	tree := small(t)
	insertRange(t, tree, 1, 5)

	rootPage, err := tree.pool.FetchPage(tree.rootPageID)
	require.NoError(t, err)
	root := node.AsInternal(rootPage)
	require.False(t, root.IsLeaf())
	require.Equal(t, 2, root.Size())
	assert.Equal(t, int64(3), root.KeyAt(1).Int64())

	leftPage, err := tree.pool.FetchPage(root.ValueAt(0))
	require.NoError(t, err)
	left := node.AsLeaf(leftPage)
	assert.Equal(t, []int64{1, 2}, []int64{left.KeyAt(0).Int64(), left.KeyAt(1).Int64()})
	assert.Equal(t, 2, left.Size())
	assert.Equal(t, root.ValueAt(1), left.Next())
	require.NoError(t, tree.pool.UnpinPage(left.PageID(), false))

	rightPage, err := tree.pool.FetchPage(root.ValueAt(1))
	require.NoError(t, err)
	right := node.AsLeaf(rightPage)
	assert.Equal(t, 3, right.Size())
	assert.Equal(t, int64(3), right.KeyAt(0).Int64())
	assert.Equal(t, base.InvalidPageID, right.Next())
	require.NoError(t, tree.pool.UnpinPage(right.PageID(), false))
	require.NoError(t, tree.pool.UnpinPage(root.PageID(), false))

	assert.Equal(t, seq(1, 5), contents(t, tree))
	checkInvariants(t, tree)
}

func TestCascadingSplitToNewRoot(t *testing.T) {
	t.Parallel()

	// Boundary scenario: seventeen sequential inserts push the tree
	// to height three.
	tree := small(t)
	insertRange(t, tree, 1, 17)

	assert.Equal(t, 3, treeHeight(t, tree))
	assert.Equal(t, seq(1, 17), contents(t, tree))
	checkInvariants(t, tree)
}

func TestDuplicateInsert(t *testing.T) {
	t.Parallel()

	tree := small(t)
	insertRange(t, tree, 1, 5)
	err := tree.Insert(NewKey(3), NewRID(99))
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// Tree unchanged: same contents, same mapping.
	rid, err := tree.Get(NewKey(3))
	require.NoError(t, err)
	assert.Equal(t, NewRID(3), rid)
	assert.Equal(t, seq(1, 5), contents(t, tree))
	checkInvariants(t, tree)
}

func TestDeleteTriggersCoalesce(t *testing.T) {
	t.Parallel()

	// Boundary scenario: from [1 2] | [3 4 5], removing 1 leaves the
	// halves small enough to merge; the root collapses back to a
	// single leaf [2 3 4 5].
	tree := small(t)
	insertRange(t, tree, 1, 5)
	require.NoError(t, tree.Remove(NewKey(1)))

	assert.Equal(t, 1, treeHeight(t, tree))
	assert.Equal(t, []int64{2, 3, 4, 5}, contents(t, tree))
	checkInvariants(t, tree)
}

func TestDeleteTriggersRedistribute(t *testing.T) {
	t.Parallel()

	// Boundary scenario: [1 2] | [3 4 5 6], removing 1 cannot merge
	// (sum 5 > 4), so one pair rotates left and the separator becomes
	// 4.
	tree := small(t)
	insertRange(t, tree, 1, 6)
	require.NoError(t, tree.Remove(NewKey(1)))

	rootPage, err := tree.pool.FetchPage(tree.rootPageID)
	require.NoError(t, err)
	root := node.AsInternal(rootPage)
	require.False(t, root.IsLeaf())
	require.Equal(t, 2, root.Size())
	assert.Equal(t, int64(4), root.KeyAt(1).Int64())

	leftPage, err := tree.pool.FetchPage(root.ValueAt(0))
	require.NoError(t, err)
	left := node.AsLeaf(leftPage)
	assert.Equal(t, []int64{2, 3}, []int64{left.KeyAt(0).Int64(), left.KeyAt(1).Int64()})
	require.NoError(t, tree.pool.UnpinPage(left.PageID(), false))

	rightPage, err := tree.pool.FetchPage(root.ValueAt(1))
	require.NoError(t, err)
	right := node.AsLeaf(rightPage)
	assert.Equal(t, 3, right.Size())
	assert.Equal(t, int64(4), right.KeyAt(0).Int64())
	require.NoError(t, tree.pool.UnpinPage(right.PageID(), false))
	require.NoError(t, tree.pool.UnpinPage(root.PageID(), false))

	assert.Equal(t, []int64{2, 3, 4, 5, 6}, contents(t, tree))
	checkInvariants(t, tree)
}

func TestEmptyTreeTransitions(t *testing.T) {
	t.Parallel()

	// Boundary scenario: insert one key, remove it, reinsert.
	tree := small(t)
	require.NoError(t, tree.Insert(NewKey(7), NewRID(7)))
	require.NoError(t, tree.Remove(NewKey(7)))

	assert.False(t, tree.rootPageID.Valid())
	_, err := tree.Get(NewKey(7))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	checkInvariants(t, tree)

	require.NoError(t, tree.Insert(NewKey(7), NewRID(7)))
	assert.Equal(t, 1, treeHeight(t, tree))
	assert.Equal(t, []int64{7}, contents(t, tree))
	checkInvariants(t, tree)
}

func TestTreeShrinksWhileDraining(t *testing.T) {
	t.Parallel()

	// AdjustRoot boundary scenario, driven repeatedly: grow to height
	// three, then drain; every intermediate state must keep the
	// invariants, and the tree must pass through shorter shapes on
	// the way down to empty.
	tree := small(t)
	insertRange(t, tree, 1, 17)
	require.Equal(t, 3, treeHeight(t, tree))

	for v := int64(1); v <= 17; v++ {
		require.NoError(t, tree.Remove(NewKey(v)))
		checkInvariants(t, tree)
	}
	assert.False(t, tree.rootPageID.Valid())
	assert.Equal(t, 0, treeHeight(t, tree))
}

func TestRandomWorkloadRoundTrip(t *testing.T) {
	t.Parallel()

	tree := small(t)
	rng := rand.New(rand.NewSource(42))
	keys := rng.Perm(300)

	model := make(map[int64]struct{})
	for _, k := range keys {
		v := int64(k)
		require.NoError(t, tree.Insert(NewKey(v), NewRID(v)))
		model[v] = struct{}{}
	}
	checkInvariants(t, tree)
	require.Len(t, contents(t, tree), len(model))
	assert.Equal(t, seq(0, 299), contents(t, tree))

	// Remove in a different random order, checking along the way.
	order := rng.Perm(300)
	for i, k := range order {
		v := int64(k)
		require.NoError(t, tree.Remove(NewKey(v)))
		delete(model, v)
		if i%25 == 0 {
			checkInvariants(t, tree)
		}
	}
	checkInvariants(t, tree)
	assert.False(t, tree.rootPageID.Valid())
	assert.Empty(t, contents(t, tree))
}

func TestPersistenceAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")
	tree, err := Open(path, "orders_pk", WithLeafMaxSize(4), WithInternalMaxSize(4))
	require.NoError(t, err)
	for v := int64(1); v <= 50; v++ {
		require.NoError(t, tree.Insert(NewKey(v), NewRID(v)))
	}
	require.NoError(t, tree.Close())

	tree, err = Open(path, "orders_pk", WithLeafMaxSize(4), WithInternalMaxSize(4))
	require.NoError(t, err)
	defer tree.Close()

	assert.Equal(t, seq(1, 50), contents(t, tree))
	rid, err := tree.Get(NewKey(37))
	require.NoError(t, err)
	assert.Equal(t, NewRID(37), rid)
	checkInvariants(t, tree)
}

func TestTwoIndexesShareOneFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shared.db")

	a, err := Open(path, "index_a")
	require.NoError(t, err)
	require.NoError(t, a.Insert(NewKey(1), NewRID(1)))
	require.NoError(t, a.Close())

	b, err := Open(path, "index_b")
	require.NoError(t, err)
	require.NoError(t, b.Insert(NewKey(2), NewRID(2)))
	require.NoError(t, b.Close())

	a, err = Open(path, "index_a")
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, []int64{1}, contents(t, a))
	_, err = a.Get(NewKey(2))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestClosedTreeRejectsOperations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")
	tree, err := Open(path, "test_index")
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	_, err = tree.Get(NewKey(1))
	assert.ErrorIs(t, err, ErrIndexClosed)
	assert.ErrorIs(t, tree.Insert(NewKey(1), NewRID(1)), ErrIndexClosed)
	assert.ErrorIs(t, tree.Remove(NewKey(1)), ErrIndexClosed)
	_, err = tree.Begin()
	assert.ErrorIs(t, err, ErrIndexClosed)
	assert.NoError(t, tree.Close())
}

func TestLookasideCache(t *testing.T) {
	t.Parallel()

	tree := setup(t, WithLeafMaxSize(4), WithInternalMaxSize(4), WithLookasideCache(1024))
	insertRange(t, tree, 1, 40)

	// Repeated gets stay correct whether or not they hit the cache.
	for i := 0; i < 3; i++ {
		rid, err := tree.Get(NewKey(17))
		require.NoError(t, err)
		assert.Equal(t, NewRID(17), rid)
	}

	require.NoError(t, tree.Remove(NewKey(17)))
	_, err := tree.Get(NewKey(17))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, tree.Insert(NewKey(17), NewRID(1700)))
	rid, err := tree.Get(NewKey(17))
	require.NoError(t, err)
	assert.Equal(t, NewRID(1700), rid)
	checkInvariants(t, tree)
}

func TestDump(t *testing.T) {
	t.Parallel()

	tree := small(t)
	out, err := tree.Dump()
	require.NoError(t, err)
	assert.Equal(t, "empty tree", out)

	insertRange(t, tree, 1, 5)
	out, err = tree.Dump()
	require.NoError(t, err)
	assert.Contains(t, out, "level 0:")
	assert.Contains(t, out, "level 1:")
	checkInvariants(t, tree)
}
