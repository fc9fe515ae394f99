package larch

import (
	"fmt"
	"io"

	"larch/internal/base"
)

// Check validates the tree's structure: key order, range partition,
// parent linkage, occupancy bounds, the entry count, and the leaf
// chain. It takes no latches, so the caller must guarantee no
// concurrent writers. Intended for tests and debugging.
func (t *BPlusTree) Check() error {
	t.mu.Lock()
	root := t.rootID
	size := t.size
	t.mu.Unlock()

	if root == base.InvalidPageID {
		if size != 0 {
			return fmt.Errorf("empty tree reports %d entries: %w", size, ErrTreeCorrupted)
		}
		return nil
	}

	v := &validator{tree: t}
	if err := v.walk(root, base.InvalidPageID, nil, nil, 1); err != nil {
		return err
	}

	for i := 0; i+1 < len(v.leaves); i++ {
		if v.nexts[i] != v.leaves[i+1] {
			return fmt.Errorf("leaf %d links to %d, want %d: %w",
				v.leaves[i], v.nexts[i], v.leaves[i+1], ErrTreeCorrupted)
		}
	}
	if n := len(v.leaves); n > 0 && v.nexts[n-1] != base.InvalidPageID {
		return fmt.Errorf("last leaf %d links to %d: %w",
			v.leaves[n-1], v.nexts[n-1], ErrTreeCorrupted)
	}
	if v.entries != size {
		return fmt.Errorf("tree reports %d entries, leaves hold %d: %w",
			size, v.entries, ErrTreeCorrupted)
	}
	return nil
}

type validator struct {
	tree      *BPlusTree
	leaves    []base.PageID
	nexts     []base.PageID
	entries   int
	leafDepth int
}

func (v *validator) walk(id, parent base.PageID, lower, upper *Key, depth int) error {
	t := v.tree
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(id, false)

	if base.ParentOf(page) != parent {
		return fmt.Errorf("page %d has parent %d, want %d: %w",
			id, base.ParentOf(page), parent, ErrTreeCorrupted)
	}
	root := parent == base.InvalidPageID

	if base.IsLeafPage(page) {
		return v.walkLeaf(page, root, lower, upper, depth)
	}

	in := base.AsInternal(page)
	min, max := 2, in.MaxSize()
	if !root {
		min = in.MinSize()
	}
	if in.Size() < min || in.Size() > max {
		return fmt.Errorf("internal %d has %d children, want %d..%d: %w",
			id, in.Size(), min, max, ErrTreeCorrupted)
	}
	for i := 2; i < in.Size(); i++ {
		if t.cmp(in.KeyAt(i-1), in.KeyAt(i)) >= 0 {
			return fmt.Errorf("internal %d keys out of order at %d: %w", id, i, ErrTreeCorrupted)
		}
	}
	for i := 1; i < in.Size(); i++ {
		k := in.KeyAt(i)
		if lower != nil && t.cmp(k, *lower) < 0 || upper != nil && t.cmp(k, *upper) >= 0 {
			return fmt.Errorf("internal %d key %x out of range: %w", id, k, ErrTreeCorrupted)
		}
	}
	for i := 0; i < in.Size(); i++ {
		childLower, childUpper := lower, upper
		if i > 0 {
			k := in.KeyAt(i)
			childLower = &k
		}
		if i < in.Size()-1 {
			k := in.KeyAt(i + 1)
			childUpper = &k
		}
		if err := v.walk(in.ChildAt(i), id, childLower, childUpper, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) walkLeaf(page *base.Page, root bool, lower, upper *Key, depth int) error {
	t := v.tree
	l := base.AsLeaf(page)
	id := l.PageID()

	if v.leafDepth == 0 {
		v.leafDepth = depth
	} else if v.leafDepth != depth {
		return fmt.Errorf("leaf %d at depth %d, want %d: %w", id, depth, v.leafDepth, ErrTreeCorrupted)
	}

	min := l.MinSize()
	if root {
		min = 1
	}
	if l.Size() < min || l.Size() > l.MaxSize()-1 {
		return fmt.Errorf("leaf %d has %d entries, want %d..%d: %w",
			id, l.Size(), min, l.MaxSize()-1, ErrTreeCorrupted)
	}
	for i := 0; i < l.Size(); i++ {
		k := l.KeyAt(i)
		if i > 0 && t.cmp(l.KeyAt(i-1), k) >= 0 {
			return fmt.Errorf("leaf %d keys out of order at %d: %w", id, i, ErrTreeCorrupted)
		}
		if lower != nil && t.cmp(k, *lower) < 0 || upper != nil && t.cmp(k, *upper) >= 0 {
			return fmt.Errorf("leaf %d key %x out of range: %w", id, k, ErrTreeCorrupted)
		}
	}

	v.leaves = append(v.leaves, id)
	v.nexts = append(v.nexts, l.Next())
	v.entries += l.Size()
	return nil
}

// Dump writes a level-order description of the tree, one node per
// line. Like Check, it assumes no concurrent writers.
func (t *BPlusTree) Dump(w io.Writer) error {
	t.mu.Lock()
	root := t.rootID
	t.mu.Unlock()

	if root == base.InvalidPageID {
		_, err := fmt.Fprintln(w, "empty tree")
		return err
	}

	level := []base.PageID{root}
	for depth := 0; len(level) > 0; depth++ {
		var next []base.PageID
		for _, id := range level {
			page, err := t.pool.FetchPage(id)
			if err != nil {
				return err
			}
			if base.IsLeafPage(page) {
				l := base.AsLeaf(page)
				keys := make([]string, l.Size())
				for i := range keys {
					keys[i] = fmt.Sprintf("%x", l.KeyAt(i))
				}
				_, err = fmt.Fprintf(w, "%*sleaf %d next=%d keys=%v\n",
					depth*2, "", id, l.Next(), keys)
			} else {
				in := base.AsInternal(page)
				keys := make([]string, 0, in.Size()-1)
				for i := 1; i < in.Size(); i++ {
					keys = append(keys, fmt.Sprintf("%x", in.KeyAt(i)))
				}
				for i := 0; i < in.Size(); i++ {
					next = append(next, in.ChildAt(i))
				}
				_, err = fmt.Fprintf(w, "%*sinternal %d keys=%v\n", depth*2, "", id, keys)
			}
			t.pool.UnpinPage(id, false)
			if err != nil {
				return err
			}
		}
		level = next
	}
	return nil
}
