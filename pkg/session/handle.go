// Package session owns the daemon's connection registry, active-agent
// arbiter, clipboard ownership vector, and file-transfer registry — the
// session-arbitration half of the core described in SPEC_FULL.md §5.
package session

import "fmt"

// Handle is a stable generational reference to a slot in a Registry. It
// replaces the raw connection-pointer identity the transfer registry and
// active-agent reference would otherwise hold: a stale Handle (one whose
// generation no longer matches the slot) is simply "not found", rather
// than a dangling pointer.
type Handle struct {
	index      int
	generation uint64
}

// Zero is the invalid handle, used to represent "no active agent".
var Zero Handle

// Valid reports whether h could plausibly refer to a live slot. It does
// not check the registry; use Registry.Lookup for that.
func (h Handle) Valid() bool {
	return h != Zero
}

func (h Handle) String() string {
	return fmt.Sprintf("handle(%d@%d)", h.index, h.generation)
}
