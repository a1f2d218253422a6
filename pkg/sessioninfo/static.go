package sessioninfo

import "context"

// Static is an in-memory Provider for tests and for environments with no
// real logind (single-session containers): it answers from a fixed
// pid→session map and a fixed active session id.
type Static struct {
	PIDSessions  map[int32]string
	Active       string
	LockedByID   map[string]bool
	changes      chan struct{}
}

// NewStatic returns a Static provider with empty maps.
func NewStatic() *Static {
	return &Static{
		PIDSessions: make(map[int32]string),
		LockedByID:  make(map[string]bool),
		changes:     make(chan struct{}, 1),
	}
}

func (s *Static) SessionForPID(_ context.Context, pid int32) (string, bool) {
	id, ok := s.PIDSessions[pid]
	return id, ok
}

func (s *Static) ActiveSession(_ context.Context) (string, bool) {
	return s.Active, s.Active != ""
}

func (s *Static) Locked(_ context.Context, sessionID string) bool {
	return s.LockedByID[sessionID]
}

func (s *Static) Changes() <-chan struct{} {
	return s.changes
}

// Notify pushes a change event, simulating an external session transition.
func (s *Static) Notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Static) Close() error {
	return nil
}
