package storage

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larch/internal/base"
)

func newTestFile(t *testing.T) *FileDiskManager {
	t.Helper()
	d, err := NewFileDiskManager(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestFileDiskReadWrite(t *testing.T) {
	t.Parallel()

	d := newTestFile(t)

	var page [base.PageSize]byte
	page[0] = 0xDE
	page[base.PageSize-base.ChecksumSize-1] = 0xAD
	require.NoError(t, d.WritePage(3, &page))

	var got [base.PageSize]byte
	require.NoError(t, d.ReadPage(3, &got))
	assert.Equal(t, byte(0xDE), got[0])
	assert.Equal(t, byte(0xAD), got[base.PageSize-base.ChecksumSize-1])

	// WritePage stamped a checksum into the trailer.
	sum := binary.LittleEndian.Uint64(got[base.PageSize-base.ChecksumSize:])
	assert.NotZero(t, sum)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Reads)
	assert.Equal(t, uint64(1), stats.Writes)
}

func TestFileDiskReadUnwritten(t *testing.T) {
	t.Parallel()

	d := newTestFile(t)

	var got [base.PageSize]byte
	got[5] = 0xFF
	require.NoError(t, d.ReadPage(10, &got))
	assert.Equal(t, [base.PageSize]byte{}, got)
}

func TestFileDiskChecksumMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")
	d, err := NewFileDiskManager(path)
	require.NoError(t, err)

	var page [base.PageSize]byte
	page[0] = 0x01
	require.NoError(t, d.WritePage(1, &page))
	require.NoError(t, d.Close())

	// Flip one payload byte behind the manager's back.
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xEE}, base.PageSize+100)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d2, err := NewFileDiskManager(path)
	require.NoError(t, err)
	defer d2.Close()

	var got [base.PageSize]byte
	err = d2.ReadPage(1, &got)
	assert.ErrorIs(t, err, base.ErrInvalidChecksum)
}

func TestFileDiskAllocate(t *testing.T) {
	t.Parallel()

	d := newTestFile(t)

	// Page 0 is reserved for the header page.
	id1, err := d.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(1), id1)

	id2, err := d.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(2), id2)

	require.NoError(t, d.DeallocatePage(id1))
	id3, err := d.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, id1, id3)

	assert.ErrorIs(t, d.DeallocatePage(base.InvalidPageID), base.ErrInvalidPageID)
	assert.ErrorIs(t, d.DeallocatePage(base.PageID(500)), base.ErrInvalidPageID)
}

func TestFileDiskReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")
	d, err := NewFileDiskManager(path)
	require.NoError(t, err)

	var page [base.PageSize]byte
	page[0] = 0x55
	require.NoError(t, d.WritePage(4, &page))
	require.NoError(t, d.Sync())
	require.NoError(t, d.Close())

	d2, err := NewFileDiskManager(path)
	require.NoError(t, err)
	defer d2.Close()

	var got [base.PageSize]byte
	require.NoError(t, d2.ReadPage(4, &got))
	assert.Equal(t, byte(0x55), got[0])

	// Allocation resumes past the written region.
	id, err := d2.AllocatePage()
	require.NoError(t, err)
	assert.Greater(t, uint64(id), uint64(4))
}

func TestFileDiskClosed(t *testing.T) {
	t.Parallel()

	d, err := NewFileDiskManager(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	var page [base.PageSize]byte
	assert.ErrorIs(t, d.ReadPage(1, &page), base.ErrClosed)
	assert.ErrorIs(t, d.WritePage(1, &page), base.ErrClosed)
	_, err = d.AllocatePage()
	assert.ErrorIs(t, err, base.ErrClosed)
}

func TestMemDisk(t *testing.T) {
	t.Parallel()

	m := NewMemDiskManager()

	id, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(1), id)

	var page [base.PageSize]byte
	page[0] = 0x99
	require.NoError(t, m.WritePage(id, &page))

	var got [base.PageSize]byte
	require.NoError(t, m.ReadPage(id, &got))
	assert.Equal(t, byte(0x99), got[0])

	// Unwritten pages read as zeroes.
	require.NoError(t, m.ReadPage(base.PageID(42), &got))
	assert.Equal(t, [base.PageSize]byte{}, got)

	require.NoError(t, m.DeallocatePage(id))
	id2, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.WritePage(id, &page), base.ErrClosed)
}
