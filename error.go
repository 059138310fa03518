package bptree

import (
	"errors"

	"bptree/internal/base"
	"bptree/internal/buffer"
)

var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrIndexClosed  = errors.New("index is closed")

	// ErrOutOfPages is returned when the buffer pool cannot bring in
	// another page because every frame is pinned. It is terminal for
	// the operation that hit it; structural changes already applied
	// stay on disk.
	ErrOutOfPages = buffer.ErrNoFreeFrames

	ErrInvalidMagicNumber = base.ErrInvalidMagicNumber
	ErrInvalidVersion     = base.ErrInvalidVersion
	ErrInvalidPageSize    = base.ErrInvalidPageSize
	ErrInvalidChecksum    = base.ErrInvalidChecksum
)
