package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddLookupRemove(t *testing.T) {
	r := NewRegistry()
	c := &Connection{SessionID: "sess-1"}
	h := r.Add(c)
	assert.True(t, h.Valid())

	got, ok := r.Lookup(h)
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, r.Len())

	r.Remove(h)
	_, ok = r.Lookup(h)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryStaleHandleAfterSlotReuse(t *testing.T) {
	r := NewRegistry()
	c1 := &Connection{SessionID: "a"}
	h1 := r.Add(c1)
	r.Remove(h1)

	c2 := &Connection{SessionID: "b"}
	h2 := r.Add(c2)

	// h1 is stale even though it may share an index with h2.
	_, ok := r.Lookup(h1)
	assert.False(t, ok)

	got, ok := r.Lookup(h2)
	require.True(t, ok)
	assert.Same(t, c2, got)
}

func TestRegistryAllReturnsLiveConnectionsOnly(t *testing.T) {
	r := NewRegistry()
	c1 := &Connection{SessionID: "a"}
	c2 := &Connection{SessionID: "b"}
	h1 := r.Add(c1)
	r.Add(c2)
	r.Remove(h1)

	all := r.All()
	require.Len(t, all, 1)
	assert.Same(t, c2, all[0])
}

func TestZeroHandleNeverLive(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(Zero)
	assert.False(t, ok)
}
