// Package sessioninfo provides the "session-info provider" external
// collaborator from spec.md §2: an opaque source of "active session id"
// and "session id for pid" answers, optionally with a readable change
// signal. This package supplies the real org.freedesktop.login1
// implementation; pkg/bridge depends only on the Provider interface.
package sessioninfo

import "context"

// Provider answers the two queries the arbiter and agent handler need.
// A nil Provider is a valid daemon configuration (spec.md §4.5 step 2's
// no-session-tracking fallback); pkg/session.ActiveSessionResolver is
// implemented in terms of Provider by pkg/bridge.
type Provider interface {
	// SessionForPID resolves the session id owning pid, or ok=false if
	// the pid has no known session (e.g. the process already exited).
	SessionForPID(ctx context.Context, pid int32) (id string, ok bool)

	// ActiveSession returns the currently active session id on the seat,
	// or ok=false if there is none (no seat, or seat has no active
	// session right now).
	ActiveSession(ctx context.Context) (id string, ok bool)

	// Locked reports whether sessionID is currently screen-locked. A
	// locked session rejects new file transfers (spec.md §4.3).
	Locked(ctx context.Context, sessionID string) bool

	// Changes returns a channel that receives a value every time the
	// active session (or a session's lock state) may have changed. The
	// channel is never closed by a well-behaved Provider implementation
	// except as part of Close.
	Changes() <-chan struct{}

	Close() error
}
