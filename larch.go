// Package larch is a page-backed concurrent B+ tree index. Fixed
// 8-byte keys map to record ids; pages live in a pinned buffer pool
// over a single index file, and multiple trees share the file through
// a registry on page 0.
package larch

import (
	"larch/internal/base"
	"larch/internal/buffer"
	"larch/internal/storage"
)

type (
	Key           = base.Key
	RID           = base.RID
	PageID        = base.PageID
	Comparator    = base.Comparator
	Logger        = base.Logger
	DiscardLogger = base.DiscardLogger

	BufferPool = buffer.Pool
	PoolOption = buffer.Option
	PoolStats  = buffer.Stats

	DiskManager = storage.DiskManager
)

// PageSize is the fixed page size of the index file.
const PageSize = base.PageSize

// Uint64Key encodes v big-endian so integer order matches key order.
func Uint64Key(v uint64) Key { return base.Uint64Key(v) }

// KeyUint64 decodes a key produced by Uint64Key.
func KeyUint64(k Key) uint64 { return base.KeyUint64(k) }

// NewRID packs a page and slot number into a record id.
func NewRID(page, slot uint32) RID { return base.NewRID(page, slot) }

// NewBufferPool creates a buffer pool with size frames over disk.
func NewBufferPool(size int, disk DiskManager, opts ...PoolOption) (*BufferPool, error) {
	return buffer.NewPool(size, disk, opts...)
}

// WithVictimCache keeps up to capacity recently evicted pages in a
// secondary cache on the buffer pool.
func WithVictimCache(capacity int) PoolOption {
	return buffer.WithVictimCache(capacity)
}

// WithPoolLogger sets the buffer pool's logger.
func WithPoolLogger(l Logger) PoolOption {
	return buffer.WithLogger(l)
}

// NewFileDiskManager opens or creates a file-backed index.
func NewFileDiskManager(path string) (DiskManager, error) {
	return storage.NewFileDiskManager(path)
}

// NewMemDiskManager creates a throwaway in-memory index backend.
func NewMemDiskManager() DiskManager {
	return storage.NewMemDiskManager()
}
