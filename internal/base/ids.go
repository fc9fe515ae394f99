package base

import (
	"bytes"
	"encoding/binary"
)

// PageID identifies a page within the index file. Page 0 is the header
// page, so 0 doubles as the invalid sentinel for node pointers.
type PageID uint64

const (
	InvalidPageID PageID = 0

	// HeaderPageID is the fixed location of the index registry.
	HeaderPageID PageID = 0
)

// KeySize is the fixed width of every index key.
const KeySize = 8

// Key is a fixed-width key stored inline in node pages.
type Key [KeySize]byte

// Comparator orders two keys. Negative if a < b, zero if equal,
// positive if a > b.
type Comparator func(a, b Key) int

// DefaultComparator orders keys as raw bytes.
func DefaultComparator(a, b Key) int {
	return bytes.Compare(a[:], b[:])
}

// Uint64Key encodes v big-endian so integer order matches byte order.
func Uint64Key(v uint64) Key {
	var k Key
	binary.BigEndian.PutUint64(k[:], v)
	return k
}

// KeyUint64 decodes a key produced by Uint64Key.
func KeyUint64(k Key) uint64 {
	return binary.BigEndian.Uint64(k[:])
}

// RID is a packed record identifier: the page number in the high 32
// bits and the slot number in the low 32 bits.
type RID uint64

func NewRID(page uint32, slot uint32) RID {
	return RID(uint64(page)<<32 | uint64(slot))
}

func (r RID) Page() uint32 { return uint32(uint64(r) >> 32) }

func (r RID) Slot() uint32 { return uint32(uint64(r) & 0xffffffff) }

func (r RID) Uint64() uint64 { return uint64(r) }
