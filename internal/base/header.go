package base

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const (
	// MaxIndexNameSize is the fixed width of an index name in the
	// header page record table. Longer names are truncated.
	MaxIndexNameSize = 32

	headerRecordSize = MaxIndexNameSize + 8
	headerFixedSize  = 12 // Magic(4) + Version(2) + PageSize(2) + RecordCount(4)
	checksumOffset   = PageSize - 8
	MaxHeaderRecords = (checksumOffset - headerFixedSize) / headerRecordSize
)

// HeaderPage is a view over the reserved page 0. It maps index names
// to root page ids and carries the file identification fields.
//
// Layout: [Magic: 4][Version: 2][PageSize: 2][RecordCount: 4]
// [records: RecordCount × (name: 32, rootPageID: 8)] ... [Checksum: 8]
//
// The checksum covers everything before it and is restamped on every
// mutation; Validate checks it on open.
type HeaderPage struct {
	page *Page
}

// AsHeader wraps a pinned page 0 in a HeaderPage view.
func AsHeader(p *Page) *HeaderPage {
	return &HeaderPage{page: p}
}

// InitHeader formats a fresh header page.
func (h *HeaderPage) InitHeader() {
	d := h.page.Data[:]
	binary.LittleEndian.PutUint32(d[0:4], MagicNumber)
	binary.LittleEndian.PutUint16(d[4:6], FormatVersion)
	binary.LittleEndian.PutUint16(d[6:8], PageSize)
	binary.LittleEndian.PutUint32(d[8:12], 0)
	h.stamp()
}

// Validate checks the identification fields and the checksum.
func (h *HeaderPage) Validate() error {
	d := h.page.Data[:]
	if binary.LittleEndian.Uint32(d[0:4]) != MagicNumber {
		return ErrInvalidMagicNumber
	}
	if binary.LittleEndian.Uint16(d[4:6]) != FormatVersion {
		return ErrInvalidVersion
	}
	if binary.LittleEndian.Uint16(d[6:8]) != PageSize {
		return ErrInvalidPageSize
	}
	stored := binary.LittleEndian.Uint64(d[checksumOffset:])
	if stored != xxhash.Sum64(d[:checksumOffset]) {
		return ErrInvalidChecksum
	}
	return nil
}

// RecordCount returns the number of (name, root) records.
func (h *HeaderPage) RecordCount() int {
	return int(binary.LittleEndian.Uint32(h.page.Data[8:12]))
}

// InsertRecord adds a (name, rootPageID) record. An existing record
// with the same name is overwritten.
func (h *HeaderPage) InsertRecord(name string, rootPageID PageID) error {
	if i := h.find(name); i >= 0 {
		h.setRoot(i, rootPageID)
		h.stamp()
		return nil
	}
	n := h.RecordCount()
	if n >= MaxHeaderRecords {
		return ErrHeaderFull
	}
	off := headerFixedSize + n*headerRecordSize
	var padded [MaxIndexNameSize]byte
	copy(padded[:], name)
	copy(h.page.Data[off:off+MaxIndexNameSize], padded[:])
	binary.LittleEndian.PutUint64(h.page.Data[off+MaxIndexNameSize:off+headerRecordSize], uint64(rootPageID))
	binary.LittleEndian.PutUint32(h.page.Data[8:12], uint32(n+1))
	h.stamp()
	return nil
}

// UpdateRecord rewrites the root page id of an existing record.
func (h *HeaderPage) UpdateRecord(name string, rootPageID PageID) error {
	i := h.find(name)
	if i < 0 {
		return ErrRecordNotFound
	}
	h.setRoot(i, rootPageID)
	h.stamp()
	return nil
}

// GetRootPageID looks up the root page id recorded for name.
func (h *HeaderPage) GetRootPageID(name string) (PageID, bool) {
	i := h.find(name)
	if i < 0 {
		return InvalidPageID, false
	}
	off := headerFixedSize + i*headerRecordSize + MaxIndexNameSize
	return PageID(binary.LittleEndian.Uint64(h.page.Data[off : off+8])), true
}

// DeleteRecord removes a record, compacting the table.
func (h *HeaderPage) DeleteRecord(name string) error {
	i := h.find(name)
	if i < 0 {
		return ErrRecordNotFound
	}
	n := h.RecordCount()
	start := headerFixedSize + i*headerRecordSize
	end := headerFixedSize + n*headerRecordSize
	copy(h.page.Data[start:], h.page.Data[start+headerRecordSize:end])
	binary.LittleEndian.PutUint32(h.page.Data[8:12], uint32(n-1))
	h.stamp()
	return nil
}

func (h *HeaderPage) find(name string) int {
	var padded [MaxIndexNameSize]byte
	copy(padded[:], name)
	n := h.RecordCount()
	for i := 0; i < n; i++ {
		off := headerFixedSize + i*headerRecordSize
		if bytes.Equal(h.page.Data[off:off+MaxIndexNameSize], padded[:]) {
			return i
		}
	}
	return -1
}

func (h *HeaderPage) setRoot(i int, rootPageID PageID) {
	off := headerFixedSize + i*headerRecordSize + MaxIndexNameSize
	binary.LittleEndian.PutUint64(h.page.Data[off:off+8], uint64(rootPageID))
}

func (h *HeaderPage) stamp() {
	d := h.page.Data[:]
	binary.LittleEndian.PutUint64(d[checksumOffset:], xxhash.Sum64(d[:checksumOffset]))
}
