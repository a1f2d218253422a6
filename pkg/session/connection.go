package session

// ScreenRect is one screen in a Connection's reported layout: an ordered
// per-screen rectangle with id and position, per spec.md §4.2.
type ScreenRect struct {
	ID     uint32
	Width  uint32
	Height uint32
	X      int32
	Y      int32
}

// Connection is one connected session agent. Owned exclusively by the
// Registry; mutated only from the core event loop goroutine.
type Connection struct {
	handle     Handle
	PeerPID    int32
	SessionID  string // resolved via the session-info provider; "" if none
	Width      uint32
	Height     uint32
	Screens    []ScreenRect
	DebugID    string // uuid assigned at accept, for log correlation
}

// Handle returns the stable generational reference to this connection.
func (c *Connection) Handle() Handle {
	return c.handle
}

// HasResolution reports whether the agent has reported a non-empty
// screen list, the precondition for the coupler to open the tablet and
// host channel (spec.md §4.5).
func (c *Connection) HasResolution() bool {
	return len(c.Screens) > 0
}
