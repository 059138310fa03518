package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"bptree/internal/base"
	"bptree/internal/storage"
)

// ErrNoFreeFrames is returned when every frame is pinned and a page
// cannot be brought in. Callers treat it as terminal for the current
// operation.
var ErrNoFreeFrames = errors.New("all buffer frames are pinned")

// DefaultPoolSize is the default number of resident frames.
const DefaultPoolSize = 64

// victimCacheSize bounds the second-tier cache of evicted page
// images.
const victimCacheSize = 256

type frame struct {
	page  *base.Page
	pin   int
	dirty bool
}

// Pool is the buffer pool manager: a bounded set of in-memory frames
// over the disk manager with per-frame pin counts and dirty tracking.
// Evicted page images are kept in a small LRU victim cache so a
// re-fetch shortly after eviction avoids the disk read.
type Pool struct {
	mu       sync.Mutex
	disk     *storage.DiskManager
	frames   map[base.PageID]*frame
	capacity int
	replacer *lruReplacer
	victims  *freelru.LRU[base.PageID, *base.Page]
}

func hashPageID(id base.PageID) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return uint32(xxhash.Sum64(b[:]))
}

// NewPool creates a pool of capacity frames over disk. The pool owns
// the disk manager and closes it on Close.
func NewPool(disk *storage.DiskManager, capacity int) (*Pool, error) {
	if capacity <= 0 {
		capacity = DefaultPoolSize
	}
	victims, err := freelru.New[base.PageID, *base.Page](victimCacheSize, hashPageID)
	if err != nil {
		return nil, err
	}
	return &Pool{
		disk:     disk,
		frames:   make(map[base.PageID]*frame),
		capacity: capacity,
		replacer: newLRUReplacer(),
		victims:  victims,
	}, nil
}

// NewPage allocates a fresh page, pinned and marked dirty so it
// reaches disk even if the caller never writes a byte.
func (p *Pool) NewPage() (base.PageID, *base.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureFrame(); err != nil {
		return base.InvalidPageID, nil, err
	}
	id, err := p.disk.AllocatePage()
	if err != nil {
		return base.InvalidPageID, nil, err
	}
	f := &frame{page: &base.Page{}, pin: 1, dirty: true}
	p.frames[id] = f
	return id, f.page, nil
}

// FetchPage pins and returns the page with the given id, reading it
// from the victim cache or disk when not resident.
func (p *Pool) FetchPage(id base.PageID) (*base.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.frames[id]; ok {
		if f.pin == 0 {
			p.replacer.remove(id)
		}
		f.pin++
		return f.page, nil
	}

	if err := p.ensureFrame(); err != nil {
		return nil, err
	}

	var page *base.Page
	if cached, ok := p.victims.Get(id); ok {
		p.victims.Remove(id)
		page = cached
	} else {
		read, err := p.disk.ReadPage(id)
		if err != nil {
			return nil, err
		}
		page = read
	}

	p.frames[id] = &frame{page: page, pin: 1}
	return page, nil
}

// UnpinPage decrements the pin count, recording whether the caller
// changed the page's bytes. A frame whose count reaches zero becomes
// evictable.
func (p *Pool) UnpinPage(id base.PageID, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.frames[id]
	if !ok {
		return fmt.Errorf("unpin of non-resident page %d", id)
	}
	if f.pin <= 0 {
		return fmt.Errorf("unpin of unpinned page %d", id)
	}
	if dirty {
		f.dirty = true
	}
	f.pin--
	if f.pin == 0 {
		p.replacer.push(id)
	}
	return nil
}

// DeletePage releases a page back to the disk allocator. The caller
// guarantees the pin count is zero at the moment of the call.
func (p *Pool) DeletePage(id base.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.frames[id]; ok {
		if f.pin != 0 {
			return fmt.Errorf("delete of pinned page %d (pin count %d)", id, f.pin)
		}
		p.replacer.remove(id)
		delete(p.frames, id)
	}
	p.victims.Remove(id)
	return p.disk.DeallocatePage(id)
}

// FlushPage writes the page to disk if it is resident and dirty.
func (p *Pool) FlushPage(id base.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(id)
}

// FlushAll writes every dirty resident page to disk.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.frames {
		if err := p.flushLocked(id); err != nil {
			return err
		}
	}
	return nil
}

// PinnedCount reports the total outstanding pins. Test hook for the
// pin-conservation invariant.
func (p *Pool) PinnedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, f := range p.frames {
		total += f.pin
	}
	return total
}

// Close flushes all dirty frames, syncs, and closes the disk manager.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.frames {
		if err := p.flushLocked(id); err != nil {
			p.disk.Close()
			return err
		}
	}
	p.frames = nil
	p.victims.Purge()
	return p.disk.Close()
}

func (p *Pool) flushLocked(id base.PageID) error {
	f, ok := p.frames[id]
	if !ok || !f.dirty {
		return nil
	}
	if err := p.disk.WritePage(id, f.page); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// ensureFrame makes room for one more resident page, evicting the
// least recently unpinned frame when the pool is full.
func (p *Pool) ensureFrame() error {
	if len(p.frames) < p.capacity {
		return nil
	}
	id, ok := p.replacer.victim()
	if !ok {
		return ErrNoFreeFrames
	}
	f := p.frames[id]
	if f.dirty {
		if err := p.disk.WritePage(id, f.page); err != nil {
			// Put the victim back; the page is still intact in memory.
			p.replacer.push(id)
			return err
		}
	}
	p.victims.Add(id, f.page)
	delete(p.frames, id)
	return nil
}
