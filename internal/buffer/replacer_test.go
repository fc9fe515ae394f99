package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplacerVictimOrder(t *testing.T) {
	t.Parallel()

	r := NewLRUReplacer(7)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	assert.Equal(t, 3, r.Size())

	// Least recently unpinned goes first.
	id, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), id)

	id, ok = r.Victim()
	require.True(t, ok)
	assert.Equal(t, FrameID(2), id)

	id, ok = r.Victim()
	require.True(t, ok)
	assert.Equal(t, FrameID(3), id)

	_, ok = r.Victim()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Size())
}

func TestReplacerPin(t *testing.T) {
	t.Parallel()

	r := NewLRUReplacer(7)
	r.Unpin(1)
	r.Unpin(2)

	r.Pin(1)
	assert.Equal(t, 1, r.Size())

	// Pinning a non-candidate is a no-op.
	r.Pin(42)
	assert.Equal(t, 1, r.Size())

	id, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, FrameID(2), id)
}

func TestReplacerUnpinNoRefresh(t *testing.T) {
	t.Parallel()

	r := NewLRUReplacer(7)
	r.Unpin(1)
	r.Unpin(2)

	// A second unpin does not move the frame to the back.
	r.Unpin(1)
	assert.Equal(t, 2, r.Size())

	id, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), id)
}

func TestReplacerCapacity(t *testing.T) {
	t.Parallel()

	r := NewLRUReplacer(2)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	assert.Equal(t, 2, r.Size())
}
