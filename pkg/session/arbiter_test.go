package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-vm/vdbridged/pkg/wire"
)

type fakeResolver struct {
	id string
	ok bool
}

func (f fakeResolver) ActiveSessionID() (string, bool) { return f.id, f.ok }

func TestArbiterNoProviderSingleAgentBecomesActive(t *testing.T) {
	r := NewRegistry()
	cb := NewClipboardOwnership()
	a := NewArbiter(r, cb, nil, nil)

	h := r.Add(&Connection{})
	tr, changed := a.Recompute()
	require.True(t, changed)
	assert.Equal(t, Zero, tr.Old)
	assert.Equal(t, h, tr.New)
	assert.Equal(t, h, a.Active())
}

func TestArbiterNoProviderTwoAgentsNoneActive(t *testing.T) {
	r := NewRegistry()
	cb := NewClipboardOwnership()
	a := NewArbiter(r, cb, nil, nil)

	r.Add(&Connection{})
	r.Add(&Connection{})

	_, changed := a.Recompute()
	assert.False(t, changed)
	assert.Equal(t, Zero, a.Active())
}

func TestArbiterProviderSelectsMatchingSession(t *testing.T) {
	r := NewRegistry()
	cb := NewClipboardOwnership()
	a := NewArbiter(r, cb, fakeResolver{id: "S", ok: true}, nil)

	r.Add(&Connection{SessionID: "other"})
	h2 := r.Add(&Connection{SessionID: "S"})

	tr, changed := a.Recompute()
	require.True(t, changed)
	assert.Equal(t, h2, tr.New)
}

func TestArbiterTwoAgentsSameSessionRefusesToPick(t *testing.T) {
	r := NewRegistry()
	cb := NewClipboardOwnership()
	a := NewArbiter(r, cb, fakeResolver{id: "S", ok: true}, nil)

	r.Add(&Connection{SessionID: "S"})
	r.Add(&Connection{SessionID: "S"})

	_, changed := a.Recompute()
	assert.False(t, changed)
	assert.Equal(t, Zero, a.Active())
}

// Recompute must not clear clipboard ownership itself: the caller has to
// read which selections were guest-owned before it resets the vector, in
// order to emit CLIPBOARD_RELEASE upstream for each (see
// bridge.releaseGuestOwnedClipboards). If Recompute reset the vector
// first, that upstream notification would be lost.
func TestArbiterTransitionDoesNotTouchClipboardOwnership(t *testing.T) {
	r := NewRegistry()
	cb := NewClipboardOwnership()
	cb.SetOwned(wire.SelectionClipboard, true)
	a := NewArbiter(r, cb, nil, nil)

	r.Add(&Connection{})
	_, changed := a.Recompute()
	require.True(t, changed)
	assert.True(t, cb.Owned(wire.SelectionClipboard))
}

func TestArbiterNoChangeWhenCandidateSame(t *testing.T) {
	r := NewRegistry()
	cb := NewClipboardOwnership()
	a := NewArbiter(r, cb, nil, nil)

	r.Add(&Connection{})
	_, changed := a.Recompute()
	require.True(t, changed)

	_, changed = a.Recompute()
	assert.False(t, changed)
}
