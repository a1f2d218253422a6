package session

import "github.com/lattice-vm/vdbridged/pkg/wire"

// ClipboardOwnership tracks, per selection, whether the guest currently
// owns that selection's clipboard content (invariant I5 in spec.md §4.2):
// true only while some active agent has grabbed it, cleared whenever the
// active agent changes.
type ClipboardOwnership struct {
	owned [3]bool // indexed by wire.Selection
}

// NewClipboardOwnership returns an ownership vector with nothing owned.
func NewClipboardOwnership() *ClipboardOwnership {
	return &ClipboardOwnership{}
}

func (c *ClipboardOwnership) Owned(sel wire.Selection) bool {
	if int(sel) >= len(c.owned) {
		return false
	}
	return c.owned[sel]
}

func (c *ClipboardOwnership) SetOwned(sel wire.Selection, owned bool) {
	if int(sel) >= len(c.owned) {
		return
	}
	c.owned[sel] = owned
}

// ResetAll clears every selection's ownership bit — invoked whenever the
// active agent transitions (spec.md §4.5's coupler reconciliation).
func (c *ClipboardOwnership) ResetAll() {
	for i := range c.owned {
		c.owned[i] = false
	}
}
