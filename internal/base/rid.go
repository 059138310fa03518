package base

import "encoding/binary"

// RIDSize is the on-page width of a record identifier.
const RIDSize = 16

// RID locates a record in a table heap: the page it lives on and its
// slot within that page. The tree treats it as an opaque fixed-width
// value.
type RID struct {
	PageID  PageID
	SlotNum uint32
}

// NewRID synthesizes a RID from an integer the way the test file
// surface does: high 32 bits become the page id, low 32 the slot.
func NewRID(v int64) RID {
	return RID{
		PageID:  PageID(v >> 32),
		SlotNum: uint32(v),
	}
}

// EncodeRID writes r into buf, which must be at least RIDSize bytes.
func EncodeRID(buf []byte, r RID) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.PageID))
	binary.LittleEndian.PutUint32(buf[8:12], r.SlotNum)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
}

// DecodeRID reads a RID from buf.
func DecodeRID(buf []byte) RID {
	return RID{
		PageID:  PageID(binary.LittleEndian.Uint64(buf[0:8])),
		SlotNum: binary.LittleEndian.Uint32(buf[8:12]),
	}
}
