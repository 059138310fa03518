package storage

import (
	"fmt"
	"os"
	"sync"

	"bptree/internal/base"
)

// DiskManager is the file-backed page store underneath the buffer
// pool. Page ids map directly to file offsets (id * PageSize). Page 0
// is the header page and is formatted when the file is created.
type DiskManager struct {
	mu       sync.Mutex
	file     *os.File
	numPages int64
	freelist *FreeList
}

// Open opens or creates an index file at path. A fresh file gets an
// initialized header page; an existing file has its header validated.
func Open(path string) (*DiskManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	dm := &DiskManager{
		file:     file,
		freelist: NewFreeList(),
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if info.Size() == 0 {
		if err := dm.initialize(); err != nil {
			file.Close()
			return nil, err
		}
		return dm, nil
	}

	dm.numPages = info.Size() / base.PageSize
	header := &base.Page{}
	if err := dm.readAt(base.HeaderPageID, header); err != nil {
		file.Close()
		return nil, err
	}
	if err := base.AsHeader(header).Validate(); err != nil {
		file.Close()
		return nil, err
	}
	return dm, nil
}

// initialize formats a new file with the header page.
func (dm *DiskManager) initialize() error {
	header := &base.Page{}
	base.AsHeader(header).InitHeader()
	if err := dm.writeAt(base.HeaderPageID, header); err != nil {
		return err
	}
	dm.numPages = 1
	return nil
}

// ReadPage reads the page with the given id into a fresh Page.
func (dm *DiskManager) ReadPage(id base.PageID) (*base.Page, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if !id.Valid() || int64(id) >= dm.numPages {
		return nil, fmt.Errorf("read of unallocated page %d", id)
	}
	page := &base.Page{}
	if err := dm.readAt(id, page); err != nil {
		return nil, err
	}
	return page, nil
}

// WritePage persists the page at its slot in the file.
func (dm *DiskManager) WritePage(id base.PageID, page *base.Page) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if !id.Valid() || int64(id) >= dm.numPages {
		return fmt.Errorf("write of unallocated page %d", id)
	}
	return dm.writeAt(id, page)
}

// AllocatePage returns a page id for a new page, reusing a
// deallocated slot when one exists and growing the file otherwise.
func (dm *DiskManager) AllocatePage() (base.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if id := dm.freelist.Allocate(); id.Valid() {
		return id, nil
	}

	id := base.PageID(dm.numPages)
	empty := &base.Page{}
	if err := dm.writeAt(id, empty); err != nil {
		return base.InvalidPageID, err
	}
	dm.numPages++
	return id, nil
}

// DeallocatePage returns a page slot to the freelist for reuse. The
// freelist is in-memory only; slots freed in a previous process are
// never reused, and the file does not shrink.
func (dm *DiskManager) DeallocatePage(id base.PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if !id.Valid() || int64(id) >= dm.numPages || id == base.HeaderPageID {
		return fmt.Errorf("deallocate of invalid page %d", id)
	}
	dm.freelist.Free(id)
	return nil
}

// NumPages returns the number of page slots in the file.
func (dm *DiskManager) NumPages() int64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.numPages
}

// Sync flushes file contents to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return fdatasync(dm.file)
}

// Close syncs and closes the underlying file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.file == nil {
		return nil
	}
	if err := fdatasync(dm.file); err != nil {
		dm.file.Close()
		dm.file = nil
		return err
	}
	err := dm.file.Close()
	dm.file = nil
	return err
}

func (dm *DiskManager) readAt(id base.PageID, page *base.Page) error {
	offset := int64(id) * base.PageSize
	n, err := dm.file.ReadAt(page.Data[:], offset)
	if err != nil {
		return err
	}
	if n != base.PageSize {
		return fmt.Errorf("short read: got %d bytes, expected %d", n, base.PageSize)
	}
	return nil
}

func (dm *DiskManager) writeAt(id base.PageID, page *base.Page) error {
	offset := int64(id) * base.PageSize
	n, err := dm.file.WriteAt(page.Data[:], offset)
	if err != nil {
		return err
	}
	if n != base.PageSize {
		return fmt.Errorf("short write: wrote %d bytes, expected %d", n, base.PageSize)
	}
	return nil
}
