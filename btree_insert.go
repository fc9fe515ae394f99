package larch

import "larch/internal/base"

// Insert adds key -> val. It returns false without modifying the
// tree when the key already exists.
func (t *BPlusTree) Insert(key Key, val RID) (bool, error) {
	ctx := &opContext{tree: t}
	t.mu.Lock()
	ctx.rootHeld = true

	if t.rootID == base.InvalidPageID {
		if err := t.startNewTree(key, val); err != nil {
			t.mu.Unlock()
			return false, err
		}
		t.size++
		t.mu.Unlock()
		return true, nil
	}

	leafPage, err := t.findLeafWrite(key, opInsert, ctx)
	if err != nil {
		ctx.release(false)
		return false, err
	}
	leaf := base.AsLeaf(leafPage)

	if _, exists := leaf.Lookup(key, t.cmp); exists {
		ctx.release(false)
		return false, nil
	}

	leaf.Insert(key, val, t.cmp)
	if leaf.Size() >= t.leafMax {
		if err := t.splitLeaf(leafPage, ctx); err != nil {
			ctx.release(true)
			return false, err
		}
	}

	ctx.release(true)
	t.bumpSize(1)
	return true, nil
}

// startNewTree seeds an empty tree with a single root leaf. Caller
// holds t.mu.
func (t *BPlusTree) startNewTree(key Key, val RID) error {
	page, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	leaf := base.InitLeaf(page, page.ID, base.InvalidPageID, t.leafMax)
	leaf.Insert(key, val, t.cmp)
	t.rootID = page.ID
	err = t.saveRoot()
	t.pool.UnpinPage(page.ID, true)
	if err == nil {
		t.log.Debug("new root leaf", "page", page.ID)
	}
	return err
}

// splitLeaf divides a full leaf, pushing the first key of the new
// right sibling into the parent.
func (t *BPlusTree) splitLeaf(leafPage *base.Page, ctx *opContext) error {
	leaf := base.AsLeaf(leafPage)

	np, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	right := base.InitLeaf(np, np.ID, leaf.Parent(), t.leafMax)
	leaf.MoveHalfTo(right)
	right.SetNext(leaf.Next())
	leaf.SetNext(right.PageID())

	riser := right.KeyAt(0)
	err = t.insertIntoParent(leafPage, riser, np, ctx)
	t.pool.UnpinPage(np.ID, true)
	return err
}

// insertIntoParent links a freshly split-off right sibling under the
// parent of old, splitting upward as needed. The parent, when one
// exists, is write-latched in ctx.
func (t *BPlusTree) insertIntoParent(old *base.Page, key Key, newPage *base.Page, ctx *opContext) error {
	if base.ParentOf(old) == base.InvalidPageID {
		// old was the root; grow a level. t.mu is held because the
		// root was never safe on the way down.
		rp, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		root := base.InitInternal(rp, rp.ID, base.InvalidPageID, t.internalMax)
		root.PopulateNewRoot(old.ID, key, newPage.ID)
		base.SetParentOf(old, rp.ID)
		base.SetParentOf(newPage, rp.ID)
		t.rootID = rp.ID
		err = t.saveRoot()
		t.pool.UnpinPage(rp.ID, true)
		t.log.Debug("root split", "root", rp.ID)
		return err
	}

	parentPage := ctx.parentOf(old)
	parent := base.AsInternal(parentPage)

	if parent.Size() < t.internalMax {
		parent.InsertNodeAfter(old.ID, key, newPage.ID)
		return nil
	}

	return t.splitInternal(parentPage, old.ID, key, newPage.ID, ctx)
}

// splitInternal distributes a full internal node plus one pending
// entry across the node and a new right sibling, then links the
// sibling one level up. Building the combined entry list first keeps
// both halves at or above minimum occupancy for every max size.
func (t *BPlusTree) splitInternal(parentPage *base.Page, oldChild base.PageID, key Key, newChild base.PageID, ctx *opContext) error {
	parent := base.AsInternal(parentPage)

	type entry struct {
		key   Key
		child base.PageID
	}
	all := make([]entry, 0, parent.Size()+1)
	for i := 0; i < parent.Size(); i++ {
		all = append(all, entry{parent.KeyAt(i), parent.ChildAt(i)})
	}
	at := parent.ValueIndex(oldChild) + 1
	all = append(all, entry{})
	copy(all[at+1:], all[at:])
	all[at] = entry{key, newChild}

	split := (t.internalMax + 2) / 2
	for i, e := range all[:split] {
		parent.SetKeyAt(i, e.key)
		parent.SetChildAt(i, e.child)
	}
	parent.SetSize(split)

	np, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	right := base.InitInternal(np, np.ID, parent.Parent(), t.internalMax)
	for i, e := range all[split:] {
		right.SetKeyAt(i, e.key)
		right.SetChildAt(i, e.child)
	}
	right.SetSize(len(all) - split)
	for _, e := range all[split:] {
		if err := right.Adopt(e.child, t.pool); err != nil {
			t.pool.UnpinPage(np.ID, true)
			return err
		}
	}

	riser := all[split].key
	err = t.insertIntoParent(parentPage, riser, np, ctx)
	t.pool.UnpinPage(np.ID, true)
	return err
}
