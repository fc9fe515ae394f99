package base

import (
	"unsafe"
)

const (
	LeafPageType     uint16 = 0x01
	InternalPageType uint16 = 0x02

	nodeHeaderSize = 32
	leafHeaderSize = 40
	entrySize      = 16

	// LeafCapacity and InternalCapacity are the hard per-page entry
	// limits. Configured max sizes must not exceed them.
	LeafCapacity     = (PageSize - ChecksumSize - leafHeaderSize) / entrySize
	InternalCapacity = (PageSize - ChecksumSize - nodeHeaderSize) / entrySize
)

// NODE PAGE LAYOUT (both kinds):
// ┌─────────────────────────────────────────────────────────────┐
// │ Header (32 bytes, leaf: 40)                                 │
// │ PageType, Size, MaxSize, Parent, Self [, Next]              │
// ├─────────────────────────────────────────────────────────────┤
// │ Entry[0] (16 bytes)                                         │
// │   leaf:     Key(8) | RID(8)                                 │
// │   internal: Key(8) | ChildID(8)  (Entry[0].Key unused)      │
// ├─────────────────────────────────────────────────────────────┤
// │ ...                                                         │
// ├─────────────────────────────────────────────────────────────┤
// │ Entry[Size-1]                                               │
// ├─────────────────────────────────────────────────────────────┤
// │ Checksum trailer (last 8 bytes)                             │
// └─────────────────────────────────────────────────────────────┘
//
// Internal nodes hold Size children and Size-1 routing keys; the key
// slot of Entry[0] is never read. Keys in Entry[1..Size-1] partition
// the children: subtree i covers [Key[i], Key[i+1]).
type nodeHeader struct {
	PageType uint16
	_        uint16
	Size     int32
	MaxSize  int32
	_        uint32
	Parent   PageID
	Self     PageID
}

type leafHeader struct {
	nodeHeader
	Next PageID
}

type leafEntry struct {
	Key Key
	Val RID
}

type internalEntry struct {
	Key   Key
	Child PageID
}

// PageFetcher pins pages on behalf of node operations that move
// children between internal nodes and must rewrite parent pointers.
// The buffer pool satisfies it.
type PageFetcher interface {
	FetchPage(id PageID) (*Page, error)
	UnpinPage(id PageID, dirty bool) bool
}

// PageType reads the node type tag of a pinned page.
func PageType(p *Page) uint16 {
	return (*nodeHeader)(unsafe.Pointer(p.Data())).PageType
}

// IsLeafPage reports whether the pinned page holds a leaf node.
func IsLeafPage(p *Page) bool { return PageType(p) == LeafPageType }

// ParentOf reads the parent pointer of a pinned node page.
func ParentOf(p *Page) PageID {
	return (*nodeHeader)(unsafe.Pointer(p.Data())).Parent
}

// SetParentOf rewrites the parent pointer of a pinned node page.
func SetParentOf(p *Page, id PageID) {
	(*nodeHeader)(unsafe.Pointer(p.Data())).Parent = id
}

// SizeOf reads the entry count of a pinned node page.
func SizeOf(p *Page) int {
	return int((*nodeHeader)(unsafe.Pointer(p.Data())).Size)
}

type node struct {
	page *Page
}

func (n node) hdr() *nodeHeader {
	return (*nodeHeader)(unsafe.Pointer(n.page.Data()))
}

func (n node) Page() *Page         { return n.page }
func (n node) PageID() PageID      { return n.hdr().Self }
func (n node) Parent() PageID      { return n.hdr().Parent }
func (n node) IsRoot() bool        { return n.hdr().Parent == InvalidPageID }
func (n node) Size() int           { return int(n.hdr().Size) }
func (n node) MaxSize() int        { return int(n.hdr().MaxSize) }
func (n node) IsLeaf() bool        { return n.hdr().PageType == LeafPageType }
func (n node) SetSize(s int)       { n.hdr().Size = int32(s) }
func (n node) IncSize(d int)       { n.hdr().Size += int32(d) }
func (n node) SetParent(id PageID) { n.hdr().Parent = id }

// LeafNode is a typed view over a pinned leaf page. The caller must
// hold the page latch for the duration of any method call.
type LeafNode struct {
	node
}

// InternalNode is a typed view over a pinned internal page.
type InternalNode struct {
	node
}

// AsLeaf reinterprets a pinned page as a leaf node.
func AsLeaf(p *Page) LeafNode { return LeafNode{node{p}} }

// AsInternal reinterprets a pinned page as an internal node.
func AsInternal(p *Page) InternalNode { return InternalNode{node{p}} }

// InitLeaf formats a fresh page as an empty leaf.
func InitLeaf(p *Page, id, parent PageID, maxSize int) LeafNode {
	l := AsLeaf(p)
	h := l.leafHdr()
	*h = leafHeader{}
	h.PageType = LeafPageType
	h.MaxSize = int32(maxSize)
	h.Parent = parent
	h.Self = id
	h.Next = InvalidPageID
	return l
}

// InitInternal formats a fresh page as an empty internal node.
func InitInternal(p *Page, id, parent PageID, maxSize int) InternalNode {
	in := AsInternal(p)
	h := in.hdr()
	*h = nodeHeader{}
	h.PageType = InternalPageType
	h.MaxSize = int32(maxSize)
	h.Parent = parent
	h.Self = id
	return in
}

func (l LeafNode) leafHdr() *leafHeader {
	return (*leafHeader)(unsafe.Pointer(l.page.Data()))
}

func (l LeafNode) entries() *[LeafCapacity]leafEntry {
	return (*[LeafCapacity]leafEntry)(unsafe.Pointer(&l.page.Data()[leafHeaderSize]))
}

// MinSize is the occupancy floor for a non-root leaf.
func (l LeafNode) MinSize() int { return l.MaxSize() / 2 }

func (l LeafNode) Next() PageID      { return l.leafHdr().Next }
func (l LeafNode) SetNext(id PageID) { l.leafHdr().Next = id }

func (l LeafNode) KeyAt(i int) Key   { return l.entries()[i].Key }
func (l LeafNode) ValueAt(i int) RID { return l.entries()[i].Val }

// Lookup finds key in the leaf.
func (l LeafNode) Lookup(key Key, cmp Comparator) (RID, bool) {
	i := l.KeyIndex(key, cmp)
	if i < l.Size() && cmp(l.entries()[i].Key, key) == 0 {
		return l.entries()[i].Val, true
	}
	return 0, false
}

// KeyIndex returns the first index whose key is >= key, or Size()
// when every key is smaller.
func (l LeafNode) KeyIndex(key Key, cmp Comparator) int {
	lo, hi := 0, l.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(l.entries()[mid].Key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Insert places key in sorted position and returns the new size. The
// caller has already ruled out duplicates and guaranteed room.
func (l LeafNode) Insert(key Key, val RID, cmp Comparator) int {
	i := l.KeyIndex(key, cmp)
	e := l.entries()
	copy(e[i+1:l.Size()+1], e[i:l.Size()])
	e[i] = leafEntry{Key: key, Val: val}
	l.IncSize(1)
	return l.Size()
}

// Remove deletes key if present and returns the resulting size.
func (l LeafNode) Remove(key Key, cmp Comparator) int {
	i := l.KeyIndex(key, cmp)
	if i < l.Size() && cmp(l.entries()[i].Key, key) == 0 {
		e := l.entries()
		copy(e[i:l.Size()-1], e[i+1:l.Size()])
		l.IncSize(-1)
	}
	return l.Size()
}

// MoveHalfTo moves the upper half of the entries to recipient, the
// freshly created right sibling of a split.
func (l LeafNode) MoveHalfTo(recipient LeafNode) {
	start := l.Size() / 2
	recipient.copyNFrom(l.entries()[start:l.Size()])
	l.SetSize(start)
}

// MoveAllTo drains the leaf into recipient, its left sibling, and
// forwards the chain pointer.
func (l LeafNode) MoveAllTo(recipient LeafNode) {
	recipient.copyNFrom(l.entries()[:l.Size()])
	recipient.SetNext(l.Next())
	l.SetSize(0)
}

// MoveFirstToEndOf shifts the first entry onto the tail of recipient,
// the left sibling.
func (l LeafNode) MoveFirstToEndOf(recipient LeafNode) {
	e := l.entries()
	recipient.copyLastFrom(e[0])
	copy(e[0:l.Size()-1], e[1:l.Size()])
	l.IncSize(-1)
}

// MoveLastToFrontOf shifts the last entry onto the head of recipient,
// the right sibling.
func (l LeafNode) MoveLastToFrontOf(recipient LeafNode) {
	recipient.copyFirstFrom(l.entries()[l.Size()-1])
	l.IncSize(-1)
}

func (l LeafNode) copyNFrom(items []leafEntry) {
	copy(l.entries()[l.Size():], items)
	l.IncSize(len(items))
}

func (l LeafNode) copyLastFrom(item leafEntry) {
	l.entries()[l.Size()] = item
	l.IncSize(1)
}

func (l LeafNode) copyFirstFrom(item leafEntry) {
	e := l.entries()
	copy(e[1:l.Size()+1], e[0:l.Size()])
	e[0] = item
	l.IncSize(1)
}

func (in InternalNode) entries() *[InternalCapacity]internalEntry {
	return (*[InternalCapacity]internalEntry)(unsafe.Pointer(&in.page.Data()[nodeHeaderSize]))
}

// MinSize is the occupancy floor (in children) for a non-root
// internal node.
func (in InternalNode) MinSize() int { return (in.MaxSize() + 1) / 2 }

func (in InternalNode) KeyAt(i int) Key             { return in.entries()[i].Key }
func (in InternalNode) SetKeyAt(i int, k Key)       { in.entries()[i].Key = k }
func (in InternalNode) ChildAt(i int) PageID        { return in.entries()[i].Child }
func (in InternalNode) SetChildAt(i int, id PageID) { in.entries()[i].Child = id }

// Lookup returns the child page that covers key.
func (in InternalNode) Lookup(key Key, cmp Comparator) PageID {
	e := in.entries()
	lo, hi := 1, in.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(e[mid].Key, key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return e[lo-1].Child
}

// ValueIndex returns the index holding child, or -1.
func (in InternalNode) ValueIndex(child PageID) int {
	for i := 0; i < in.Size(); i++ {
		if in.entries()[i].Child == child {
			return i
		}
	}
	return -1
}

// PopulateNewRoot seeds a fresh root after the old root split.
func (in InternalNode) PopulateNewRoot(oldChild PageID, key Key, newChild PageID) {
	e := in.entries()
	e[0] = internalEntry{Child: oldChild}
	e[1] = internalEntry{Key: key, Child: newChild}
	in.SetSize(2)
}

// InsertNodeAfter places (key, newChild) immediately after oldChild
// and returns the new size.
func (in InternalNode) InsertNodeAfter(oldChild PageID, key Key, newChild PageID) int {
	idx := in.ValueIndex(oldChild) + 1
	e := in.entries()
	copy(e[idx+1:in.Size()+1], e[idx:in.Size()])
	e[idx] = internalEntry{Key: key, Child: newChild}
	in.IncSize(1)
	return in.Size()
}

// Remove deletes the entry at index, closing the gap.
func (in InternalNode) Remove(index int) {
	e := in.entries()
	copy(e[index:in.Size()-1], e[index+1:in.Size()])
	in.IncSize(-1)
}

// RemoveAndReturnOnlyChild empties a size-1 node, handing back its
// sole child for root collapse.
func (in InternalNode) RemoveAndReturnOnlyChild() PageID {
	child := in.entries()[0].Child
	in.SetSize(0)
	return child
}

// MoveAllTo drains the node into recipient, its left sibling. The
// separator key from the parent becomes the key over the first moved
// child. Moved children are re-parented through f.
func (in InternalNode) MoveAllTo(recipient InternalNode, middleKey Key, f PageFetcher) error {
	e := in.entries()
	e[0].Key = middleKey
	if err := recipient.copyNFrom(e[:in.Size()], f); err != nil {
		return err
	}
	in.SetSize(0)
	return nil
}

// MoveFirstToEndOf shifts the first child onto the tail of recipient,
// the left sibling, keyed by the parent separator.
func (in InternalNode) MoveFirstToEndOf(recipient InternalNode, middleKey Key, f PageFetcher) error {
	e := in.entries()
	moved := internalEntry{Key: middleKey, Child: e[0].Child}
	copy(e[0:in.Size()-1], e[1:in.Size()])
	in.IncSize(-1)
	return recipient.copyLastFrom(moved, f)
}

// MoveLastToFrontOf shifts the last child onto the head of recipient,
// the right sibling. The parent separator key moves down over what
// was recipient's first child.
func (in InternalNode) MoveLastToFrontOf(recipient InternalNode, middleKey Key, f PageFetcher) error {
	moved := in.entries()[in.Size()-1]
	in.IncSize(-1)
	return recipient.copyFirstFrom(moved, middleKey, f)
}

func (in InternalNode) copyNFrom(items []internalEntry, f PageFetcher) error {
	copy(in.entries()[in.Size():], items)
	in.IncSize(len(items))
	for _, it := range items {
		if err := in.adopt(it.Child, f); err != nil {
			return err
		}
	}
	return nil
}

func (in InternalNode) copyLastFrom(item internalEntry, f PageFetcher) error {
	in.entries()[in.Size()] = item
	in.IncSize(1)
	return in.adopt(item.Child, f)
}

func (in InternalNode) copyFirstFrom(item internalEntry, middleKey Key, f PageFetcher) error {
	e := in.entries()
	copy(e[1:in.Size()+1], e[0:in.Size()])
	e[1].Key = middleKey
	e[0] = internalEntry{Child: item.Child}
	in.IncSize(1)
	return in.adopt(item.Child, f)
}

// Adopt rewrites child's parent pointer to this node.
func (in InternalNode) Adopt(child PageID, f PageFetcher) error {
	return in.adopt(child, f)
}

func (in InternalNode) adopt(child PageID, f PageFetcher) error {
	p, err := f.FetchPage(child)
	if err != nil {
		return err
	}
	(*nodeHeader)(unsafe.Pointer(p.Data())).Parent = in.PageID()
	f.UnpinPage(child, true)
	return nil
}
