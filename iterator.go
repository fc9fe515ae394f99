package larch

import "larch/internal/base"

// Iterator walks the leaf chain in key order. It keeps exactly one
// leaf pinned and write-latched, so writers block behind it until it
// advances or closes. Always Close an iterator that is done early.
type Iterator struct {
	tree *BPlusTree
	page *base.Page
	idx  int
}

// Begin positions an iterator at the first entry.
func (t *BPlusTree) Begin() (*Iterator, error) {
	page, err := t.writeLatchedLeaf(nil)
	if err != nil {
		return nil, err
	}
	return &Iterator{tree: t, page: page}, nil
}

// BeginFrom positions an iterator at the first entry whose key is
// >= key.
func (t *BPlusTree) BeginFrom(key Key) (*Iterator, error) {
	page, err := t.writeLatchedLeaf(&key)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, page: page}
	if page != nil {
		it.idx = base.AsLeaf(page).KeyIndex(key, t.cmp)
		if it.idx >= base.AsLeaf(page).Size() {
			if err := it.advanceLeaf(); err != nil {
				return nil, err
			}
		}
	}
	return it, nil
}

// writeLatchedLeaf descends to the leaf covering key (the leftmost
// leaf when key is nil) holding read latches on the way, then trades
// up to a write latch at the leaf level.
func (t *BPlusTree) writeLatchedLeaf(key *Key) (*base.Page, error) {
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
	if base.IsLeafPage(page) {
		page.WLatch()
	} else {
		page.RLatch()
	}
	t.mu.Unlock()

	for !base.IsLeafPage(page) {
		in := base.AsInternal(page)
		var child base.PageID
		if key == nil {
			child = in.ChildAt(0)
		} else {
			child = in.Lookup(*key, t.cmp)
		}
		next, err := t.pool.FetchPage(child)
		if err != nil {
			page.RUnlatch()
			t.pool.UnpinPage(page.ID, false)
			return nil, err
		}
		if base.IsLeafPage(next) {
			next.WLatch()
		} else {
			next.RLatch()
		}
		page.RUnlatch()
		t.pool.UnpinPage(page.ID, false)
		page = next
	}
	return page, nil
}

// IsEnd reports whether the iterator is past the last entry.
func (it *Iterator) IsEnd() bool { return it.page == nil }

// Key returns the current key. Only valid while !IsEnd().
func (it *Iterator) Key() Key {
	return base.AsLeaf(it.page).KeyAt(it.idx)
}

// Value returns the current record id. Only valid while !IsEnd().
func (it *Iterator) Value() RID {
	return base.AsLeaf(it.page).ValueAt(it.idx)
}

// Next advances one entry, hopping to the next leaf when the current
// one is exhausted. The next leaf is latched before the current leaf
// is released.
func (it *Iterator) Next() error {
	if it.page == nil {
		return ErrIteratorDone
	}
	if it.idx+1 < base.AsLeaf(it.page).Size() {
		it.idx++
		return nil
	}
	return it.advanceLeaf()
}

func (it *Iterator) advanceLeaf() error {
	next := base.AsLeaf(it.page).Next()
	var np *base.Page
	if next != base.InvalidPageID {
		var err error
		np, err = it.tree.pool.FetchPage(next)
		if err != nil {
			it.Close()
			return err
		}
		np.WLatch()
	}
	cur := it.page
	it.page = np
	it.idx = 0
	cur.WUnlatch()
	it.tree.pool.UnpinPage(cur.ID, false)
	return nil
}

// Close releases the iterator's leaf. Safe to call twice.
func (it *Iterator) Close() {
	if it.page == nil {
		return
	}
	cur := it.page
	it.page = nil
	cur.WUnlatch()
	it.tree.pool.UnpinPage(cur.ID, false)
}
