package bptree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bptree/internal/base"
	"bptree/internal/node"
)

// checkInvariants verifies the structural invariants that must hold
// between operations: fill floors, separator bounds, parent links,
// uniform leaf depth, the leaf chain, and pin conservation.
func checkInvariants(t *testing.T, tree *BPlusTree) {
	t.Helper()

	require.Equal(t, 0, tree.pool.PinnedCount(), "pins leaked by a previous operation")
	if !tree.rootPageID.Valid() {
		return
	}

	var leaves []base.PageID
	var walk func(id, parent base.PageID) (minKey, maxKey int64, height int)
	walk = func(id, parent base.PageID) (int64, int64, int) {
		page, err := tree.pool.FetchPage(id)
		require.NoError(t, err)
		defer func() {
			require.NoError(t, tree.pool.UnpinPage(id, false))
		}()

		c := node.AsCommon(page)
		isRoot := parent == base.InvalidPageID
		require.Equal(t, id, c.PageID(), "header page id out of sync")
		require.Equal(t, parent, c.ParentPageID(), "stale parent link on page %d", id)
		require.LessOrEqual(t, c.Size(), c.MaxSize())
		if !isRoot {
			require.GreaterOrEqual(t, c.Size(), c.MinSize(), "underfull page %d", id)
		}

		if c.IsLeaf() {
			leaf := node.AsLeaf(page)
			require.Positive(t, leaf.Size(), "reachable empty leaf %d", id)
			for i := 1; i < leaf.Size(); i++ {
				require.Negative(t, tree.cmp(leaf.KeyAt(i-1), leaf.KeyAt(i)),
					"keys out of order in leaf %d", id)
			}
			leaves = append(leaves, id)
			return leaf.KeyAt(0).Int64(), leaf.KeyAt(leaf.Size() - 1).Int64(), 1
		}

		in := node.AsInternal(page)
		if isRoot {
			require.GreaterOrEqual(t, in.Size(), 2, "internal root with a single child")
		}

		var minKey, prevMax int64
		height := 0
		for i := 0; i < in.Size(); i++ {
			cmin, cmax, h := walk(in.ValueAt(i), id)
			if i == 0 {
				minKey, height = cmin, h
			} else {
				require.Equal(t, height, h, "ragged leaf depth under page %d", id)
				sep := in.KeyAt(i).Int64()
				require.LessOrEqual(t, sep, cmin, "separator above its right subtree in page %d", id)
				require.Greater(t, sep, prevMax, "separator not above its left subtree in page %d", id)
			}
			prevMax = cmax
		}
		return minKey, prevMax, height + 1
	}

	walk(tree.rootPageID, base.InvalidPageID)

	// The chain must visit exactly the leaves of the in-order walk.
	for i, id := range leaves {
		page, err := tree.pool.FetchPage(id)
		require.NoError(t, err)
		next := node.AsLeaf(page).Next()
		require.NoError(t, tree.pool.UnpinPage(id, false))
		if i == len(leaves)-1 {
			require.Equal(t, base.InvalidPageID, next, "rightmost leaf has a sibling")
		} else {
			require.Equal(t, leaves[i+1], next, "leaf chain diverges at page %d", id)
		}
	}

	require.Equal(t, 0, tree.pool.PinnedCount(), "invariant walk leaked pins")
}
