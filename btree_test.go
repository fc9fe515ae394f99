package larch

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, opts ...Option) *BPlusTree {
	t.Helper()
	pool, err := NewBufferPool(64, NewMemDiskManager())
	require.NoError(t, err)
	tree, err := New("test", pool, opts...)
	require.NoError(t, err)
	return tree
}

func TestTreeEmpty(t *testing.T) {
	t.Parallel()

	tree := setup(t)

	assert.True(t, tree.IsEmpty())
	assert.Equal(t, 0, tree.Size())

	_, ok, err := tree.Get(Uint64Key(1))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tree.Remove(Uint64Key(1)))

	h, err := tree.Height()
	require.NoError(t, err)
	assert.Equal(t, 0, h)

	require.NoError(t, tree.Check())
}

func TestTreeInsertGet(t *testing.T) {
	t.Parallel()

	tree := setup(t)

	for v := uint64(1); v <= 100; v++ {
		ok, err := tree.Insert(Uint64Key(v), RID(v*10))
		require.NoError(t, err)
		require.True(t, ok, "insert %d", v)
	}
	assert.Equal(t, 100, tree.Size())
	assert.False(t, tree.IsEmpty())

	for v := uint64(1); v <= 100; v++ {
		rid, ok, err := tree.Get(Uint64Key(v))
		require.NoError(t, err)
		require.True(t, ok, "get %d", v)
		assert.Equal(t, RID(v*10), rid)
	}

	_, ok, err := tree.Get(Uint64Key(101))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tree.Check())
}

func TestTreeInsertDuplicate(t *testing.T) {
	t.Parallel()

	tree := setup(t)

	ok, err := tree.Insert(Uint64Key(7), RID(70))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(Uint64Key(7), RID(999))
	require.NoError(t, err)
	assert.False(t, ok)

	// The original mapping survives.
	rid, found, err := tree.Get(Uint64Key(7))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, RID(70), rid)
	assert.Equal(t, 1, tree.Size())
}

func TestTreeSplits(t *testing.T) {
	t.Parallel()

	tree := setup(t, WithLeafMaxSize(3), WithInternalMaxSize(3))

	for v := uint64(1); v <= 50; v++ {
		ok, err := tree.Insert(Uint64Key(v), RID(v))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tree.Check(), "after insert %d", v)
	}
	assert.Equal(t, 50, tree.Size())

	h, err := tree.Height()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, h, 3)

	for v := uint64(1); v <= 50; v++ {
		_, ok, err := tree.Get(Uint64Key(v))
		require.NoError(t, err)
		assert.True(t, ok, "get %d", v)
	}
}

func TestTreeSplitsDescending(t *testing.T) {
	t.Parallel()

	tree := setup(t, WithLeafMaxSize(3), WithInternalMaxSize(3))

	for v := uint64(50); v >= 1; v-- {
		ok, err := tree.Insert(Uint64Key(v), RID(v))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, tree.Check())
	assert.Equal(t, 50, tree.Size())

	for v := uint64(1); v <= 50; v++ {
		_, ok, err := tree.Get(Uint64Key(v))
		require.NoError(t, err)
		assert.True(t, ok, "get %d", v)
	}
}

func TestTreeRedistribute(t *testing.T) {
	t.Parallel()

	tree := setup(t, WithLeafMaxSize(4), WithInternalMaxSize(4))

	// Leaves end up {1,2} and {3,4,5} under one internal root.
	for v := uint64(1); v <= 5; v++ {
		ok, err := tree.Insert(Uint64Key(v), RID(v))
		require.NoError(t, err)
		require.True(t, ok)
	}
	h, err := tree.Height()
	require.NoError(t, err)
	require.Equal(t, 2, h)

	// The left leaf underflows and borrows from its right sibling.
	require.NoError(t, tree.Remove(Uint64Key(1)))
	require.NoError(t, tree.Check())
	assert.Equal(t, 4, tree.Size())

	h, err = tree.Height()
	require.NoError(t, err)
	assert.Equal(t, 2, h)

	for v := uint64(2); v <= 5; v++ {
		_, ok, err := tree.Get(Uint64Key(v))
		require.NoError(t, err)
		assert.True(t, ok, "get %d", v)
	}
}

func TestTreeCoalesceCollapsesRoot(t *testing.T) {
	t.Parallel()

	tree := setup(t, WithLeafMaxSize(4), WithInternalMaxSize(4))

	for v := uint64(1); v <= 5; v++ {
		ok, err := tree.Insert(Uint64Key(v), RID(v))
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Two removals drain the pair below merge threshold; the root
	// internal node collapses back into a single leaf.
	require.NoError(t, tree.Remove(Uint64Key(1)))
	require.NoError(t, tree.Remove(Uint64Key(2)))
	require.NoError(t, tree.Check())
	assert.Equal(t, 3, tree.Size())

	h, err := tree.Height()
	require.NoError(t, err)
	assert.Equal(t, 1, h)

	for v := uint64(3); v <= 5; v++ {
		_, ok, err := tree.Get(Uint64Key(v))
		require.NoError(t, err)
		assert.True(t, ok, "get %d", v)
	}
}

func TestTreeRemoveAll(t *testing.T) {
	t.Parallel()

	tree := setup(t, WithLeafMaxSize(3), WithInternalMaxSize(3))

	for v := uint64(1); v <= 60; v++ {
		ok, err := tree.Insert(Uint64Key(v), RID(v))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for v := uint64(1); v <= 60; v++ {
		require.NoError(t, tree.Remove(Uint64Key(v)))
		require.NoError(t, tree.Check(), "after remove %d", v)
	}

	assert.True(t, tree.IsEmpty())
	assert.Equal(t, 0, tree.Size())

	// The tree is reusable after emptying.
	ok, err := tree.Insert(Uint64Key(7), RID(7))
	require.NoError(t, err)
	require.True(t, ok)
	rid, found, err := tree.Get(Uint64Key(7))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, RID(7), rid)
}

func TestTreeRandomized(t *testing.T) {
	t.Parallel()

	tree := setup(t, WithLeafMaxSize(4), WithInternalMaxSize(4))
	rng := rand.New(rand.NewSource(42))

	keys := rng.Perm(200)
	for _, k := range keys {
		ok, err := tree.Insert(Uint64Key(uint64(k)), RID(k))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, tree.Check())
	require.Equal(t, 200, tree.Size())

	// Remove a random half, keep the rest.
	removed := make(map[int]bool)
	for _, k := range keys[:100] {
		require.NoError(t, tree.Remove(Uint64Key(uint64(k))))
		removed[k] = true
	}
	require.NoError(t, tree.Check())
	require.Equal(t, 100, tree.Size())

	for k := 0; k < 200; k++ {
		rid, ok, err := tree.Get(Uint64Key(uint64(k)))
		require.NoError(t, err)
		if removed[k] {
			assert.False(t, ok, "key %d should be gone", k)
		} else {
			require.True(t, ok, "key %d should remain", k)
			assert.Equal(t, RID(k), rid)
		}
	}
}

func TestTreeRemoveMissing(t *testing.T) {
	t.Parallel()

	tree := setup(t)
	ok, err := tree.Insert(Uint64Key(1), RID(1))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tree.Remove(Uint64Key(99)))
	assert.Equal(t, 1, tree.Size())
}

func TestTreeNamedSiblings(t *testing.T) {
	t.Parallel()

	pool, err := NewBufferPool(64, NewMemDiskManager())
	require.NoError(t, err)

	a, err := New("alpha", pool)
	require.NoError(t, err)
	b, err := New("beta", pool)
	require.NoError(t, err)

	for v := uint64(1); v <= 20; v++ {
		_, err := a.Insert(Uint64Key(v), RID(v))
		require.NoError(t, err)
		_, err = b.Insert(Uint64Key(v), RID(v*100))
		require.NoError(t, err)
	}

	rid, ok, err := a.Get(Uint64Key(5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, RID(5), rid)

	rid, ok, err = b.Get(Uint64Key(5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, RID(500), rid)
}

func TestTreeNameConflict(t *testing.T) {
	t.Parallel()

	pool, err := NewBufferPool(16, NewMemDiskManager())
	require.NoError(t, err)

	_, err = New("dup", pool)
	require.NoError(t, err)
	_, err = New("dup", pool)
	assert.ErrorIs(t, err, ErrIndexExists)
}

func TestTreeOpenMissing(t *testing.T) {
	t.Parallel()

	pool, err := NewBufferPool(16, NewMemDiskManager())
	require.NoError(t, err)

	_, err = Open("nothere", pool)
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestTreeInvalidConfig(t *testing.T) {
	t.Parallel()

	pool, err := NewBufferPool(16, NewMemDiskManager())
	require.NoError(t, err)

	_, err = New("", pool)
	assert.ErrorIs(t, err, ErrInvalidName)

	long := make([]byte, 33)
	for i := range long {
		long[i] = 'x'
	}
	_, err = New(string(long), pool)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = New("badleaf", pool, WithLeafMaxSize(1))
	assert.Error(t, err)

	_, err = New("badint", pool, WithInternalMaxSize(2))
	assert.Error(t, err)
}

func TestTreeDrop(t *testing.T) {
	t.Parallel()

	pool, err := NewBufferPool(64, NewMemDiskManager())
	require.NoError(t, err)

	tree, err := New("doomed", pool, WithLeafMaxSize(3), WithInternalMaxSize(3))
	require.NoError(t, err)
	for v := uint64(1); v <= 30; v++ {
		_, err := tree.Insert(Uint64Key(v), RID(v))
		require.NoError(t, err)
	}

	require.NoError(t, tree.Drop())

	_, err = Open("doomed", pool)
	assert.ErrorIs(t, err, ErrIndexNotFound)

	// The name is free again.
	again, err := New("doomed", pool)
	require.NoError(t, err)
	assert.True(t, again.IsEmpty())
}

func TestTreePersistence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")

	disk, err := NewFileDiskManager(path)
	require.NoError(t, err)
	pool, err := NewBufferPool(16, disk)
	require.NoError(t, err)

	tree, err := New("persist", pool, WithLeafMaxSize(4), WithInternalMaxSize(4))
	require.NoError(t, err)

	// Far more pages than frames, so the pool evicts throughout.
	const n = 500
	for v := uint64(1); v <= n; v++ {
		ok, err := tree.Insert(Uint64Key(v), RID(v))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, tree.Check())
	require.NoError(t, pool.Close())

	disk2, err := NewFileDiskManager(path)
	require.NoError(t, err)
	pool2, err := NewBufferPool(16, disk2)
	require.NoError(t, err)
	defer pool2.Close()

	reopened, err := Open("persist", pool2, WithLeafMaxSize(4), WithInternalMaxSize(4))
	require.NoError(t, err)
	assert.Equal(t, n, reopened.Size())

	for v := uint64(1); v <= n; v++ {
		rid, ok, err := reopened.Get(Uint64Key(v))
		require.NoError(t, err)
		require.True(t, ok, "get %d after reopen", v)
		assert.Equal(t, RID(v), rid)
	}
	require.NoError(t, reopened.Check())
}
