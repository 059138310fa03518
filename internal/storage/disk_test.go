package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bptree/internal/base"
)

func TestDiskInitializesHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")
	dm, err := Open(path)
	require.NoError(t, err)
	defer dm.Close()

	assert.Equal(t, int64(1), dm.NumPages())
	header, err := dm.ReadPage(base.HeaderPageID)
	require.NoError(t, err)
	assert.NoError(t, base.AsHeader(header).Validate())
}

func TestDiskReadWriteRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")
	dm, err := Open(path)
	require.NoError(t, err)

	id, err := dm.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(1), id)

	page := &base.Page{}
	copy(page.Data[:], []byte("persisted bytes"))
	require.NoError(t, dm.WritePage(id, page))
	require.NoError(t, dm.Close())

	// Survives reopen.
	dm, err = Open(path)
	require.NoError(t, err)
	defer dm.Close()
	got, err := dm.ReadPage(id)
	require.NoError(t, err)
	assert.Equal(t, page.Data, got.Data)
}

func TestDiskFreelistReuse(t *testing.T) {
	t.Parallel()

	dm, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer dm.Close()

	a, err := dm.AllocatePage()
	require.NoError(t, err)
	b, err := dm.AllocatePage()
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	require.NoError(t, dm.DeallocatePage(a))
	reused, err := dm.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, a, reused)
}

func TestDiskRejectsInvalidAccess(t *testing.T) {
	t.Parallel()

	dm, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer dm.Close()

	_, err = dm.ReadPage(42)
	assert.Error(t, err)
	assert.Error(t, dm.WritePage(42, &base.Page{}))
	assert.Error(t, dm.DeallocatePage(base.HeaderPageID))
}

func TestDiskDetectsCorruptHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")
	dm, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, dm.Close())

	// Flip bytes inside the checksummed region.
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, 16)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, base.ErrInvalidChecksum)
}
