package node

import (
	"encoding/binary"

	"bptree/internal/base"
)

// PageType tags a tree page as leaf or internal.
type PageType uint32

const (
	LeafPage PageType = iota + 1
	InternalPage
)

// Common header layout, shared by leaf and internal pages:
//
//	[PageType: 4][PageID: 8][ParentPageID: 8][Size: 4][MaxSize: 4]
//
// Leaves append [NextPageID: 8] followed by the dense (key, RID)
// array; internals append the dense (key, child) array directly.
const (
	HeaderSize = 28

	LeafHeaderSize = HeaderSize + 8 // + NextPageID

	LeafSlotSize     = base.KeySize + base.RIDSize
	InternalSlotSize = base.KeySize + 8

	// LeafMaxSlots and InternalMaxSlots are the derived per-page
	// capacities for the default 4KB page.
	LeafMaxSlots     = (base.PageSize - LeafHeaderSize) / LeafSlotSize
	InternalMaxSlots = (base.PageSize - HeaderSize) / InternalSlotSize
)

// Common is a view over the header prefix of any tree page. It is
// safe to read before dispatching on the page type.
type Common struct {
	page *base.Page
}

// AsCommon wraps a pinned tree page in a header view.
func AsCommon(p *base.Page) Common {
	return Common{page: p}
}

// Page returns the underlying page buffer.
func (c Common) Page() *base.Page {
	return c.page
}

// Type reads the page type tag.
func (c Common) Type() PageType {
	return PageType(binary.LittleEndian.Uint32(c.page.Data[0:4]))
}

func (c Common) setType(t PageType) {
	binary.LittleEndian.PutUint32(c.page.Data[0:4], uint32(t))
}

// IsLeaf reports whether the page is a leaf.
func (c Common) IsLeaf() bool {
	return c.Type() == LeafPage
}

// PageID returns the page's own identity as recorded in its header.
func (c Common) PageID() base.PageID {
	return base.PageID(binary.LittleEndian.Uint64(c.page.Data[4:12]))
}

func (c Common) setPageID(id base.PageID) {
	binary.LittleEndian.PutUint64(c.page.Data[4:12], uint64(id))
}

// ParentPageID returns the parent page id, InvalidPageID on the root.
func (c Common) ParentPageID() base.PageID {
	return base.PageID(binary.LittleEndian.Uint64(c.page.Data[12:20]))
}

// SetParentPageID rewrites the parent link in place.
func (c Common) SetParentPageID(id base.PageID) {
	binary.LittleEndian.PutUint64(c.page.Data[12:20], uint64(id))
}

// IsRoot reports whether the page has no parent.
func (c Common) IsRoot() bool {
	return c.ParentPageID() == base.InvalidPageID
}

// Size returns the current slot count (child-pointer count on
// internals).
func (c Common) Size() int {
	return int(binary.LittleEndian.Uint32(c.page.Data[20:24]))
}

// SetSize overwrites the slot count.
func (c Common) SetSize(n int) {
	binary.LittleEndian.PutUint32(c.page.Data[20:24], uint32(n))
}

// IncSize adjusts the slot count by delta.
func (c Common) IncSize(delta int) {
	c.SetSize(c.Size() + delta)
}

// MaxSize returns the page capacity fixed at init time.
func (c Common) MaxSize() int {
	return int(binary.LittleEndian.Uint32(c.page.Data[24:28]))
}

func (c Common) setMaxSize(n int) {
	binary.LittleEndian.PutUint32(c.page.Data[24:28], uint32(n))
}

// MinSize is the fill floor for non-root pages.
func (c Common) MinSize() int {
	return (c.MaxSize() + 1) / 2
}

// Pinner is the slice of the buffer pool contract node operations
// need when they rewrite the parent link of a transferred child.
type Pinner interface {
	FetchPage(id base.PageID) (*base.Page, error)
	UnpinPage(id base.PageID, dirty bool) error
}

// reparent pins child, points its parent link at parent, and unpins
// dirty.
func reparent(bp Pinner, child, parent base.PageID) error {
	p, err := bp.FetchPage(child)
	if err != nil {
		return err
	}
	AsCommon(p).SetParentPageID(parent)
	return bp.UnpinPage(child, true)
}
