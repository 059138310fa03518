package bptree

import (
	"bptree/internal/base"
	"bptree/internal/buffer"
)

// Options configures index behavior.
type Options struct {
	comparator       base.Comparator
	poolSize         int
	leafMaxSize      int // 0 derives from the page size
	internalMaxSize  int // 0 derives from the page size
	lookasideEntries int64
	logger           Logger
}

func defaultOptions() Options {
	return Options{
		comparator: base.CompareInt64,
		poolSize:   buffer.DefaultPoolSize,
		logger:     DiscardLogger{},
	}
}

// Option configures index options using the functional options pattern.
type Option func(*Options)

// WithComparator replaces the default integer comparator.
func WithComparator(cmp Comparator) Option {
	return func(opts *Options) {
		opts.comparator = cmp
	}
}

// WithPoolSize sets the number of buffer pool frames.
func WithPoolSize(frames int) Option {
	return func(opts *Options) {
		opts.poolSize = frames
	}
}

// WithLeafMaxSize caps leaf fan-out below the page-derived capacity.
// Small caps keep trees short and are mainly useful in tests.
func WithLeafMaxSize(n int) Option {
	return func(opts *Options) {
		opts.leafMaxSize = n
	}
}

// WithInternalMaxSize caps internal fan-out below the page-derived
// capacity.
func WithInternalMaxSize(n int) Option {
	return func(opts *Options) {
		opts.internalMaxSize = n
	}
}

// WithLookasideCache enables a point-lookup cache of roughly entries
// key to record-id mappings in front of tree descent.
func WithLookasideCache(entries int64) Option {
	return func(opts *Options) {
		opts.lookasideEntries = entries
	}
}

// WithLogger installs a logger for structural events. The default
// discards everything.
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		opts.logger = l
	}
}
