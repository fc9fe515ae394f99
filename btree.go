package larch

import (
	"fmt"
	"sync"

	"larch/internal/base"
	"larch/internal/buffer"
)

// BPlusTree is a concurrent B+ tree index over a buffer pool. Keys
// are fixed 8-byte values mapping to record ids. Readers crab down
// the tree with shared latches; writers hold exclusive latches on the
// path that might change and release ancestors as soon as a node
// bounds the modification.
//
// The tree's own mutex guards only the root page id and the entry
// count. It is taken at the start of every operation and released the
// moment the operation can no longer change the root.
type BPlusTree struct {
	mu     sync.Mutex
	rootID base.PageID
	size   int

	name        string
	pool        *buffer.Pool
	cmp         base.Comparator
	leafMax     int
	internalMax int
	log         Logger
}

// New creates and registers a new named tree in the pool's file. It
// fails with ErrIndexExists when the name is taken.
func New(name string, pool *BufferPool, opts ...Option) (*BPlusTree, error) {
	t, err := makeTree(name, pool, opts)
	if err != nil {
		return nil, err
	}

	hp, err := pool.FetchPage(base.HeaderPageID)
	if err != nil {
		return nil, err
	}
	hp.WLatch()
	ok := base.AsHeader(hp).InsertRecord(name, base.InvalidPageID)
	hp.WUnlatch()
	pool.UnpinPage(base.HeaderPageID, ok)
	if !ok {
		if _, exists := headerLookup(pool, name); exists {
			return nil, ErrIndexExists
		}
		return nil, ErrHeaderFull
	}
	return t, nil
}

// Open attaches to a tree previously registered under name. The entry
// count is rebuilt by walking the leaf chain.
func Open(name string, pool *BufferPool, opts ...Option) (*BPlusTree, error) {
	t, err := makeTree(name, pool, opts)
	if err != nil {
		return nil, err
	}

	root, ok := headerLookup(pool, name)
	if !ok {
		return nil, ErrIndexNotFound
	}
	t.rootID = root
	if root != base.InvalidPageID {
		n, err := t.countEntries()
		if err != nil {
			return nil, err
		}
		t.size = n
	}
	return t, nil
}

func makeTree(name string, pool *BufferPool, opts []Option) (*BPlusTree, error) {
	if len(name) == 0 || len(name) > 32 {
		return nil, ErrInvalidName
	}

	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.leafMaxSize < 2 || options.leafMaxSize > base.LeafCapacity {
		return nil, fmt.Errorf("leaf max size %d: want 2..%d", options.leafMaxSize, base.LeafCapacity)
	}
	if options.internalMaxSize < 3 || options.internalMaxSize > base.InternalCapacity {
		return nil, fmt.Errorf("internal max size %d: want 3..%d", options.internalMaxSize, base.InternalCapacity)
	}

	return &BPlusTree{
		rootID:      base.InvalidPageID,
		name:        name,
		pool:        pool,
		cmp:         options.comparator,
		leafMax:     options.leafMaxSize,
		internalMax: options.internalMaxSize,
		log:         options.logger,
	}, nil
}

func headerLookup(pool *BufferPool, name string) (base.PageID, bool) {
	hp, err := pool.FetchPage(base.HeaderPageID)
	if err != nil {
		return base.InvalidPageID, false
	}
	hp.RLatch()
	root, ok := base.AsHeader(hp).GetRootID(name)
	hp.RUnlatch()
	pool.UnpinPage(base.HeaderPageID, false)
	return root, ok
}

// saveRoot records the current root id in the page 0 registry. Caller
// holds t.mu.
func (t *BPlusTree) saveRoot() error {
	hp, err := t.pool.FetchPage(base.HeaderPageID)
	if err != nil {
		return err
	}
	hp.WLatch()
	ok := base.AsHeader(hp).UpdateRecord(t.name, t.rootID)
	hp.WUnlatch()
	t.pool.UnpinPage(base.HeaderPageID, true)
	if !ok {
		return ErrIndexNotFound
	}
	return nil
}

// IsEmpty reports whether the tree has no entries.
func (t *BPlusTree) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootID == base.InvalidPageID
}

// Size returns the number of entries.
func (t *BPlusTree) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Get looks up the record id stored under key.
func (t *BPlusTree) Get(key Key) (RID, bool, error) {
	t.mu.Lock()
	root := t.rootID
	if root == base.InvalidPageID {
		t.mu.Unlock()
		return 0, false, nil
	}
	page, err := t.pool.FetchPage(root)
	if err != nil {
		t.mu.Unlock()
		return 0, false, err
	}
	page.RLatch()
	t.mu.Unlock()

	for !base.IsLeafPage(page) {
		child := base.AsInternal(page).Lookup(key, t.cmp)
		next, err := t.pool.FetchPage(child)
		if err != nil {
			page.RUnlatch()
			t.pool.UnpinPage(page.ID, false)
			return 0, false, err
		}
		next.RLatch()
		page.RUnlatch()
		t.pool.UnpinPage(page.ID, false)
		page = next
	}

	rid, ok := base.AsLeaf(page).Lookup(key, t.cmp)
	page.RUnlatch()
	t.pool.UnpinPage(page.ID, false)
	return rid, ok, nil
}

// Height returns the number of levels, zero for an empty tree.
func (t *BPlusTree) Height() (int, error) {
	page, err := t.latchedRoot()
	if err != nil || page == nil {
		return 0, err
	}
	h := 1
	for !base.IsLeafPage(page) {
		child := base.AsInternal(page).ChildAt(0)
		next, err := t.pool.FetchPage(child)
		if err != nil {
			page.RUnlatch()
			t.pool.UnpinPage(page.ID, false)
			return 0, err
		}
		next.RLatch()
		page.RUnlatch()
		t.pool.UnpinPage(page.ID, false)
		page = next
		h++
	}
	page.RUnlatch()
	t.pool.UnpinPage(page.ID, false)
	return h, nil
}

// countEntries walks the leaf chain summing entry counts.
func (t *BPlusTree) countEntries() (int, error) {
	page, err := t.leftmostLeaf()
	if err != nil || page == nil {
		return 0, err
	}
	n := 0
	for {
		leaf := base.AsLeaf(page)
		n += leaf.Size()
		next := leaf.Next()
		page.RUnlatch()
		t.pool.UnpinPage(page.ID, false)
		if next == base.InvalidPageID {
			return n, nil
		}
		page, err = t.pool.FetchPage(next)
		if err != nil {
			return 0, err
		}
		page.RLatch()
	}
}

// latchedRoot fetches and read-latches the root, releasing t.mu once
// latched. Returns nil for an empty tree.
func (t *BPlusTree) latchedRoot() (*base.Page, error) {
	t.mu.Lock()
	root := t.rootID
	if root == base.InvalidPageID {
		t.mu.Unlock()
		return nil, nil
	}
	page, err := t.pool.FetchPage(root)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	page.RLatch()
	t.mu.Unlock()
	return page, nil
}

// leftmostLeaf descends to the first leaf with read crabbing and
// returns it read-latched and pinned, or nil for an empty tree.
func (t *BPlusTree) leftmostLeaf() (*base.Page, error) {
	page, err := t.latchedRoot()
	if err != nil || page == nil {
		return nil, err
	}
	for !base.IsLeafPage(page) {
		child := base.AsInternal(page).ChildAt(0)
		next, err := t.pool.FetchPage(child)
		if err != nil {
			page.RUnlatch()
			t.pool.UnpinPage(page.ID, false)
			return nil, err
		}
		next.RLatch()
		page.RUnlatch()
		t.pool.UnpinPage(page.ID, false)
		page = next
	}
	return page, nil
}

type opKind int

const (
	opInsert opKind = iota
	opRemove
)

// opContext tracks the write-latched, pinned path of one structural
// operation, root page first, plus pages emptied along the way.
type opContext struct {
	tree     *BPlusTree
	pages    []*base.Page
	rootHeld bool
	deleted  []base.PageID
}

func (c *opContext) push(p *base.Page) {
	c.pages = append(c.pages, p)
}

func (c *opContext) parentOf(p *base.Page) *base.Page {
	for i, q := range c.pages {
		if q == p {
			if i == 0 {
				return nil
			}
			return c.pages[i-1]
		}
	}
	return nil
}

// releaseAncestors drops every held page once a safe child bounds the
// structural change. Nothing has been modified yet.
func (c *opContext) releaseAncestors() {
	for _, p := range c.pages {
		p.WUnlatch()
		c.tree.pool.UnpinPage(p.ID, false)
	}
	c.pages = c.pages[:0]
	if c.rootHeld {
		c.tree.mu.Unlock()
		c.rootHeld = false
	}
}

// release ends the operation, marking held pages dirty when it
// modified the tree.
func (c *opContext) release(dirty bool) {
	for _, p := range c.pages {
		p.WUnlatch()
		c.tree.pool.UnpinPage(p.ID, dirty)
	}
	c.pages = nil
	if c.rootHeld {
		c.tree.mu.Unlock()
		c.rootHeld = false
	}
}

// safe reports whether a modification below p cannot propagate into
// p's ancestors.
func (t *BPlusTree) safe(p *base.Page, op opKind) bool {
	size := base.SizeOf(p)
	leaf := base.IsLeafPage(p)
	if op == opInsert {
		if leaf {
			return size < t.leafMax-1
		}
		return size < t.internalMax
	}
	if base.ParentOf(p) == base.InvalidPageID {
		if leaf {
			return size > 1
		}
		return size > 2
	}
	if leaf {
		return size > base.AsLeaf(p).MinSize()
	}
	return size > base.AsInternal(p).MinSize()
}

// findLeafWrite crabs from the root to the leaf covering key with
// write latches, releasing ancestors behind every safe node. Caller
// holds t.mu; the context inherits it.
func (t *BPlusTree) findLeafWrite(key Key, op opKind, ctx *opContext) (*base.Page, error) {
	page, err := t.pool.FetchPage(t.rootID)
	if err != nil {
		return nil, err
	}
	page.WLatch()
	if t.safe(page, op) {
		ctx.releaseAncestors()
	}
	ctx.push(page)

	for !base.IsLeafPage(page) {
		child := base.AsInternal(page).Lookup(key, t.cmp)
		cp, err := t.pool.FetchPage(child)
		if err != nil {
			return nil, err
		}
		cp.WLatch()
		if t.safe(cp, op) {
			ctx.releaseAncestors()
		}
		ctx.push(cp)
		page = cp
	}
	return page, nil
}

// bumpSize adjusts the entry count after an operation has released
// its latches.
func (t *BPlusTree) bumpSize(d int) {
	t.mu.Lock()
	t.size += d
	t.mu.Unlock()
}

// Drop removes every page of the tree and unregisters its name. The
// caller must guarantee no concurrent operations.
func (t *BPlusTree) Drop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootID != base.InvalidPageID {
		if err := t.dropSubtree(t.rootID); err != nil {
			return err
		}
		t.rootID = base.InvalidPageID
		t.size = 0
	}

	hp, err := t.pool.FetchPage(base.HeaderPageID)
	if err != nil {
		return err
	}
	hp.WLatch()
	ok := base.AsHeader(hp).DeleteRecord(t.name)
	hp.WUnlatch()
	t.pool.UnpinPage(base.HeaderPageID, ok)
	if !ok {
		return ErrIndexNotFound
	}
	return nil
}

func (t *BPlusTree) dropSubtree(id base.PageID) error {
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return err
	}
	if !base.IsLeafPage(page) {
		in := base.AsInternal(page)
		children := make([]base.PageID, in.Size())
		for i := range children {
			children[i] = in.ChildAt(i)
		}
		t.pool.UnpinPage(id, false)
		for _, c := range children {
			if err := t.dropSubtree(c); err != nil {
				return err
			}
		}
	} else {
		t.pool.UnpinPage(id, false)
	}
	if !t.pool.DeletePage(id) {
		return ErrPagePinned
	}
	return nil
}
