package larch

import "larch/internal/base"

// Remove deletes key if present. Removing a missing key is a no-op.
func (t *BPlusTree) Remove(key Key) error {
	ctx := &opContext{tree: t}
	t.mu.Lock()
	ctx.rootHeld = true

	if t.rootID == base.InvalidPageID {
		t.mu.Unlock()
		return nil
	}

	leafPage, err := t.findLeafWrite(key, opRemove, ctx)
	if err != nil {
		ctx.release(false)
		return err
	}
	leaf := base.AsLeaf(leafPage)

	before := leaf.Size()
	after := leaf.Remove(key, t.cmp)
	if after == before {
		ctx.release(false)
		return nil
	}

	var structErr error
	if base.ParentOf(leafPage) == base.InvalidPageID {
		if after == 0 {
			structErr = t.adjustRoot(leafPage, ctx)
		}
	} else if after < leaf.MinSize() {
		structErr = t.coalesceOrRedistribute(leafPage, ctx)
	}

	ctx.release(true)
	for _, id := range ctx.deleted {
		t.pool.DeletePage(id)
	}
	t.bumpSize(-1)
	return structErr
}

// coalesceOrRedistribute restores minimum occupancy for a non-root
// node that dropped below it, either by borrowing one entry from a
// sibling or by merging with it.
func (t *BPlusTree) coalesceOrRedistribute(page *base.Page, ctx *opContext) error {
	if base.ParentOf(page) == base.InvalidPageID {
		return t.adjustRoot(page, ctx)
	}

	parentPage := ctx.parentOf(page)
	parent := base.AsInternal(parentPage)
	idx := parent.ValueIndex(page.ID)
	sibIdx := idx - 1
	if idx == 0 {
		sibIdx = 1
	}
	sibPage, err := t.pool.FetchPage(parent.ChildAt(sibIdx))
	if err != nil {
		return err
	}
	sibPage.WLatch()

	sum := base.SizeOf(page) + base.SizeOf(sibPage)
	var merge bool
	if base.IsLeafPage(page) {
		merge = sum < t.leafMax
	} else {
		merge = sum <= t.internalMax
	}

	if merge {
		err = t.coalesce(page, sibPage, parentPage, idx, ctx)
	} else {
		err = t.redistribute(page, sibPage, parentPage, idx)
	}

	sibPage.WUnlatch()
	t.pool.UnpinPage(sibPage.ID, true)
	return err
}

// coalesce merges the right node of the pair into the left, removes
// the separator from the parent, and rebalances the parent if it
// underflows in turn.
func (t *BPlusTree) coalesce(page, sibPage, parentPage *base.Page, idx int, ctx *opContext) error {
	parent := base.AsInternal(parentPage)

	leftPage, rightPage := sibPage, page
	rightIdx := idx
	if idx == 0 {
		leftPage, rightPage = page, sibPage
		rightIdx = 1
	}

	if base.IsLeafPage(page) {
		base.AsLeaf(rightPage).MoveAllTo(base.AsLeaf(leftPage))
	} else {
		middle := parent.KeyAt(rightIdx)
		if err := base.AsInternal(rightPage).MoveAllTo(base.AsInternal(leftPage), middle, t.pool); err != nil {
			return err
		}
	}
	parent.Remove(rightIdx)
	ctx.deleted = append(ctx.deleted, rightPage.ID)
	t.log.Debug("coalesced pages", "left", leftPage.ID, "right", rightPage.ID)

	if base.ParentOf(parentPage) == base.InvalidPageID {
		if parent.Size() == 1 {
			return t.adjustRoot(parentPage, ctx)
		}
		return nil
	}
	if parent.Size() < parent.MinSize() {
		return t.coalesceOrRedistribute(parentPage, ctx)
	}
	return nil
}

// redistribute borrows one entry from the sibling into page and
// refreshes the parent separator.
func (t *BPlusTree) redistribute(page, sibPage, parentPage *base.Page, idx int) error {
	parent := base.AsInternal(parentPage)

	if idx == 0 {
		// Borrow the first entry of the right sibling.
		if base.IsLeafPage(page) {
			sib := base.AsLeaf(sibPage)
			sib.MoveFirstToEndOf(base.AsLeaf(page))
			parent.SetKeyAt(1, sib.KeyAt(0))
			return nil
		}
		sib := base.AsInternal(sibPage)
		if err := sib.MoveFirstToEndOf(base.AsInternal(page), parent.KeyAt(1), t.pool); err != nil {
			return err
		}
		parent.SetKeyAt(1, sib.KeyAt(0))
		return nil
	}

	// Borrow the last entry of the left sibling.
	if base.IsLeafPage(page) {
		sib := base.AsLeaf(sibPage)
		sib.MoveLastToFrontOf(base.AsLeaf(page))
		parent.SetKeyAt(idx, base.AsLeaf(page).KeyAt(0))
		return nil
	}
	sib := base.AsInternal(sibPage)
	riser := sib.KeyAt(sib.Size() - 1)
	if err := sib.MoveLastToFrontOf(base.AsInternal(page), parent.KeyAt(idx), t.pool); err != nil {
		return err
	}
	parent.SetKeyAt(idx, riser)
	return nil
}

// adjustRoot handles the two root special cases: an emptied leaf root
// ends the tree, and an internal root left with one child promotes
// that child. Caller holds t.mu.
func (t *BPlusTree) adjustRoot(rootPage *base.Page, ctx *opContext) error {
	if base.IsLeafPage(rootPage) {
		if base.SizeOf(rootPage) != 0 {
			return nil
		}
		t.rootID = base.InvalidPageID
		ctx.deleted = append(ctx.deleted, rootPage.ID)
		t.log.Debug("tree emptied", "root", rootPage.ID)
		return t.saveRoot()
	}

	root := base.AsInternal(rootPage)
	if root.Size() != 1 {
		return nil
	}
	child := root.RemoveAndReturnOnlyChild()
	cp, err := t.pool.FetchPage(child)
	if err != nil {
		return err
	}
	base.SetParentOf(cp, base.InvalidPageID)
	t.pool.UnpinPage(child, true)

	t.rootID = child
	ctx.deleted = append(ctx.deleted, rootPage.ID)
	t.log.Debug("root collapsed", "old", rootPage.ID, "new", child)
	return t.saveRoot()
}
