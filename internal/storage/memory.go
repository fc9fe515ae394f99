package storage

import (
	"sync"

	"larch/internal/base"
)

var _ DiskManager = (*MemDiskManager)(nil)

// MemDiskManager keeps pages in a map. It skips checksums and exists
// for tests and throwaway indexes.
type MemDiskManager struct {
	mu     sync.Mutex
	pages  map[base.PageID]*[base.PageSize]byte
	next   base.PageID
	free   map[base.PageID]struct{}
	closed bool
}

func NewMemDiskManager() *MemDiskManager {
	return &MemDiskManager{
		pages: make(map[base.PageID]*[base.PageSize]byte),
		next:  1,
		free:  make(map[base.PageID]struct{}),
	}
}

func (m *MemDiskManager) ReadPage(id base.PageID, data *[base.PageSize]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return base.ErrClosed
	}
	if p, ok := m.pages[id]; ok {
		*data = *p
	} else {
		*data = [base.PageSize]byte{}
	}
	return nil
}

func (m *MemDiskManager) WritePage(id base.PageID, data *[base.PageSize]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return base.ErrClosed
	}
	p := new([base.PageSize]byte)
	*p = *data
	m.pages[id] = p
	return nil
}

func (m *MemDiskManager) AllocatePage() (base.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return base.InvalidPageID, base.ErrClosed
	}
	for id := range m.free {
		delete(m.free, id)
		return id, nil
	}
	id := m.next
	m.next++
	return id, nil
}

func (m *MemDiskManager) DeallocatePage(id base.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return base.ErrClosed
	}
	if id == base.InvalidPageID || id >= m.next {
		return base.ErrInvalidPageID
	}
	delete(m.pages, id)
	m.free[id] = struct{}{}
	return nil
}

func (m *MemDiskManager) Sync() error { return nil }

func (m *MemDiskManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
