package cache

import (
	"encoding/binary"

	"github.com/dgraph-io/ristretto/v2"

	"bptree/internal/base"
)

// Lookaside caches key → record-id mappings in front of tree descent
// for point lookups. It is fill-on-read and invalidate-on-delete; the
// tree never depends on it for correctness, only to skip a descent.
type Lookaside struct {
	c *ristretto.Cache[uint64, base.RID]
}

// NewLookaside sizes a cache for roughly entries live mappings.
func NewLookaside(entries int64) (*Lookaside, error) {
	c, err := ristretto.NewCache(&ristretto.Config[uint64, base.RID]{
		NumCounters: entries * 10,
		MaxCost:     entries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Lookaside{c: c}, nil
}

func keyHash(k base.Key) uint64 {
	return binary.LittleEndian.Uint64(k[:])
}

// Get returns the cached record id for k, if present.
func (l *Lookaside) Get(k base.Key) (base.RID, bool) {
	return l.c.Get(keyHash(k))
}

// Put records a key → record-id mapping. Admission is best-effort.
func (l *Lookaside) Put(k base.Key, r base.RID) {
	l.c.Set(keyHash(k), r, 1)
}

// Invalidate drops any cached mapping for k.
func (l *Lookaside) Invalidate(k base.Key) {
	l.c.Del(keyHash(k))
}

// Wait blocks until buffered admissions are applied. Test hook.
func (l *Lookaside) Wait() {
	l.c.Wait()
}

// Close releases the cache's resources.
func (l *Lookaside) Close() {
	l.c.Close()
}
