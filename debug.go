package bptree

import (
	"fmt"
	"strings"

	"bptree/internal/base"
	"bptree/internal/node"
)

// Dump renders the tree rank by rank for debugging. Keys print via
// their integer interpretation.
func (t *BPlusTree) Dump() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return "", ErrIndexClosed
	}
	if !t.rootPageID.Valid() {
		return "empty tree", nil
	}

	var sb strings.Builder
	queue := []base.PageID{t.rootPageID}
	for level := 0; len(queue) > 0; level++ {
		var next []base.PageID
		fmt.Fprintf(&sb, "level %d:", level)
		for _, id := range queue {
			page, err := t.pool.FetchPage(id)
			if err != nil {
				return "", err
			}
			c := node.AsCommon(page)
			if c.IsLeaf() {
				leaf := node.AsLeaf(page)
				keys := make([]string, leaf.Size())
				for i := range keys {
					keys[i] = fmt.Sprint(leaf.KeyAt(i).Int64())
				}
				fmt.Fprintf(&sb, " [page %d: %s]", id, strings.Join(keys, " "))
			} else {
				in := node.AsInternal(page)
				parts := make([]string, 0, in.Size())
				parts = append(parts, fmt.Sprintf("*%d", in.ValueAt(0)))
				for i := 1; i < in.Size(); i++ {
					parts = append(parts, fmt.Sprintf("%d *%d", in.KeyAt(i).Int64(), in.ValueAt(i)))
				}
				for i := 0; i < in.Size(); i++ {
					next = append(next, in.ValueAt(i))
				}
				fmt.Fprintf(&sb, " [page %d: %s]", id, strings.Join(parts, " "))
			}
			if err := t.pool.UnpinPage(id, false); err != nil {
				return "", err
			}
		}
		sb.WriteByte('\n')
		queue = next
	}
	return sb.String(), nil
}
