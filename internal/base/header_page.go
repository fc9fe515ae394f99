package base

import "unsafe"

const (
	headerNameSize   = 32
	headerRecordSize = 40

	// HeaderCapacity is the number of index records page 0 can hold.
	HeaderCapacity = (PageSize - ChecksumSize - 8) / headerRecordSize
)

// HEADER PAGE LAYOUT (page 0):
// ┌──────────────────────────────────────────────┐
// │ RecordCount (4 bytes) + pad (4)              │
// ├──────────────────────────────────────────────┤
// │ Record[0] (40 bytes): Name(32) | RootID(8)   │
// ├──────────────────────────────────────────────┤
// │ ...                                          │
// ├──────────────────────────────────────────────┤
// │ Checksum trailer (last 8 bytes)              │
// └──────────────────────────────────────────────┘
type headerRecord struct {
	Name [headerNameSize]byte
	Root PageID
}

// HeaderPage is the registry view over pinned page 0, mapping index
// names to root page ids. The caller must hold the page latch.
type HeaderPage struct {
	page *Page
}

func AsHeader(p *Page) HeaderPage { return HeaderPage{p} }

// InitHeader formats a fresh page 0 with zero records.
func InitHeader(p *Page) HeaderPage {
	h := HeaderPage{p}
	*h.count() = 0
	return h
}

func (h HeaderPage) count() *uint32 {
	return (*uint32)(unsafe.Pointer(h.page.Data()))
}

func (h HeaderPage) records() *[HeaderCapacity]headerRecord {
	return (*[HeaderCapacity]headerRecord)(unsafe.Pointer(&h.page.Data()[8]))
}

func (h HeaderPage) RecordCount() int { return int(*h.count()) }

func (h HeaderPage) find(name [headerNameSize]byte) int {
	r := h.records()
	for i := 0; i < h.RecordCount(); i++ {
		if r[i].Name == name {
			return i
		}
	}
	return -1
}

func headerName(name string) ([headerNameSize]byte, bool) {
	var n [headerNameSize]byte
	if len(name) == 0 || len(name) > headerNameSize {
		return n, false
	}
	copy(n[:], name)
	return n, true
}

// InsertRecord registers a new index. It fails on duplicate names, a
// full page, or an unusable name.
func (h HeaderPage) InsertRecord(name string, root PageID) bool {
	n, ok := headerName(name)
	if !ok || h.find(n) >= 0 || h.RecordCount() >= HeaderCapacity {
		return false
	}
	h.records()[h.RecordCount()] = headerRecord{Name: n, Root: root}
	*h.count()++
	return true
}

// UpdateRecord repoints an existing index at a new root.
func (h HeaderPage) UpdateRecord(name string, root PageID) bool {
	n, ok := headerName(name)
	if !ok {
		return false
	}
	i := h.find(n)
	if i < 0 {
		return false
	}
	h.records()[i].Root = root
	return true
}

// DeleteRecord unregisters an index.
func (h HeaderPage) DeleteRecord(name string) bool {
	n, ok := headerName(name)
	if !ok {
		return false
	}
	i := h.find(n)
	if i < 0 {
		return false
	}
	r := h.records()
	copy(r[i:h.RecordCount()-1], r[i+1:h.RecordCount()])
	*h.count()--
	return true
}

// GetRootID looks up the root page of a registered index.
func (h HeaderPage) GetRootID(name string) (PageID, bool) {
	n, ok := headerName(name)
	if !ok {
		return InvalidPageID, false
	}
	i := h.find(n)
	if i < 0 {
		return InvalidPageID, false
	}
	return h.records()[i].Root, true
}
