package session

// Registry owns every connected agent's Connection record, keyed by a
// generational Handle. It is exclusively owned by the core event loop:
// per spec.md §4.7 ("the connection registry is owned by the server and
// mutated only in connect/disconnect callbacks"), there are no
// concurrent-access concerns to design around — Add/Remove/Lookup are
// called only from the single loop goroutine.
type Registry struct {
	slots []slot
	free  []int
}

type slot struct {
	generation uint64
	conn       *Connection // nil when the slot is free
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add inserts conn and returns the handle that now identifies it.
func (r *Registry) Add(conn *Connection) Handle {
	var idx int
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx].generation++
	} else {
		idx = len(r.slots)
		r.slots = append(r.slots, slot{generation: 1})
	}
	h := Handle{index: idx, generation: r.slots[idx].generation}
	conn.handle = h
	r.slots[idx].conn = conn
	return h
}

// Remove evicts the connection at h, if h is still live. Subsequent
// lookups of h (or any handle sharing its index) return not-found until
// the slot is recycled by a later Add with a fresh generation.
func (r *Registry) Remove(h Handle) {
	if !r.isLive(h) {
		return
	}
	r.slots[h.index].conn = nil
	r.free = append(r.free, h.index)
}

// Lookup returns the connection referred to by h, or (nil, false) if h is
// stale or was never valid.
func (r *Registry) Lookup(h Handle) (*Connection, bool) {
	if !r.isLive(h) {
		return nil, false
	}
	return r.slots[h.index].conn, true
}

func (r *Registry) isLive(h Handle) bool {
	if h.index < 0 || h.index >= len(r.slots) {
		return false
	}
	s := r.slots[h.index]
	return s.conn != nil && s.generation == h.generation
}

// All returns every live connection. Order is unspecified.
func (r *Registry) All() []*Connection {
	out := make([]*Connection, 0, len(r.slots)-len(r.free))
	for _, s := range r.slots {
		if s.conn != nil {
			out = append(out, s.conn)
		}
	}
	return out
}

// Len reports the number of currently connected agents.
func (r *Registry) Len() int {
	return len(r.slots) - len(r.free)
}
