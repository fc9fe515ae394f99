package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"larch/internal/base"
)

// DiskManager handles page I/O below the buffer pool.
type DiskManager interface {
	ReadPage(id base.PageID, data *[base.PageSize]byte) error
	WritePage(id base.PageID, data *[base.PageSize]byte) error
	AllocatePage() (base.PageID, error)
	DeallocatePage(id base.PageID) error
	Sync() error
	Close() error
}

var _ DiskManager = (*FileDiskManager)(nil)

// preallocPages is the file growth increment.
const preallocPages = 64

// FileDiskManager stores pages in a single file at offset id*PageSize.
// Every page carries an xxhash checksum in its trailing 8 bytes,
// stamped on write and verified on read. Page 0 is reserved for the
// header page; AllocatePage hands out ids from 1.
type FileDiskManager struct {
	mu       sync.Mutex // protects next, capacity, free, closed
	file     *os.File
	next     base.PageID
	capacity int64 // pages the file has room for
	free     map[base.PageID]struct{}
	closed   bool

	// Stats counters
	reads  atomic.Uint64
	writes atomic.Uint64
}

// NewFileDiskManager opens or creates the index file.
func NewFileDiskManager(path string) (*FileDiskManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	pages := info.Size() / base.PageSize
	next := base.PageID(pages)
	if next < 1 {
		next = 1
	}

	return &FileDiskManager{
		file:     file,
		next:     next,
		capacity: pages,
		free:     make(map[base.PageID]struct{}),
	}, nil
}

// ReadPage reads a page into data. Reads past the written region
// return a zeroed page.
func (d *FileDiskManager) ReadPage(id base.PageID, data *[base.PageSize]byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return base.ErrClosed
	}
	d.mu.Unlock()

	d.reads.Add(1)
	n, err := d.file.ReadAt(data[:], int64(id)*base.PageSize)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		for i := n; i < base.PageSize; i++ {
			data[i] = 0
		}
	} else if err != nil {
		return fmt.Errorf("read page %d: %w", id, err)
	}

	return verifyChecksum(id, data)
}

// WritePage stamps the checksum trailer and writes the page.
func (d *FileDiskManager) WritePage(id base.PageID, data *[base.PageSize]byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return base.ErrClosed
	}
	d.mu.Unlock()

	stampChecksum(data)

	d.writes.Add(1)
	n, err := d.file.WriteAt(data[:], int64(id)*base.PageSize)
	if err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	if n != base.PageSize {
		return fmt.Errorf("short write: wrote %d bytes, expected %d", n, base.PageSize)
	}
	return nil
}

// AllocatePage returns a free page id, reusing deallocated ids before
// extending the file.
func (d *FileDiskManager) AllocatePage() (base.PageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return base.InvalidPageID, base.ErrClosed
	}

	for id := range d.free {
		delete(d.free, id)
		return id, nil
	}

	id := d.next
	d.next++
	if int64(d.next) > d.capacity {
		grow := d.capacity + preallocPages
		if err := preallocate(d.file, grow*base.PageSize); err != nil {
			d.next--
			return base.InvalidPageID, fmt.Errorf("grow file: %w", err)
		}
		d.capacity = grow
	}
	return id, nil
}

// DeallocatePage returns id to the free set for reuse.
func (d *FileDiskManager) DeallocatePage(id base.PageID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return base.ErrClosed
	}
	if id == base.InvalidPageID || id >= d.next {
		return base.ErrInvalidPageID
	}
	d.free[id] = struct{}{}
	return nil
}

// Sync flushes written pages to stable storage.
func (d *FileDiskManager) Sync() error {
	return fsyncData(d.file)
}

// Close syncs and closes the file.
func (d *FileDiskManager) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if err := fsyncData(d.file); err != nil {
		d.file.Close()
		return err
	}
	return d.file.Close()
}

// Stats holds I/O statistics.
type Stats struct {
	Reads  uint64
	Writes uint64
}

// Stats returns I/O statistics.
func (d *FileDiskManager) Stats() Stats {
	return Stats{
		Reads:  d.reads.Load(),
		Writes: d.writes.Load(),
	}
}

func stampChecksum(data *[base.PageSize]byte) {
	sum := xxhash.Sum64(data[:base.PageSize-base.ChecksumSize])
	binary.LittleEndian.PutUint64(data[base.PageSize-base.ChecksumSize:], sum)
}

func verifyChecksum(id base.PageID, data *[base.PageSize]byte) error {
	stored := binary.LittleEndian.Uint64(data[base.PageSize-base.ChecksumSize:])
	if stored == 0 {
		// Never-written page.
		return nil
	}
	sum := xxhash.Sum64(data[:base.PageSize-base.ChecksumSize])
	if sum != stored {
		return fmt.Errorf("page %d: %w", id, base.ErrInvalidChecksum)
	}
	return nil
}
