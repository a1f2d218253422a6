package session

import "log/slog"

// ActiveSessionResolver answers "which session is active" and "does a
// session-info provider exist at all". A nil provider (ok=false) means
// the daemon falls back to the no-session-tracking policy of §4.5 step 2:
// the sole connected agent, if exactly one exists, is active.
type ActiveSessionResolver interface {
	ActiveSessionID() (id string, ok bool)
}

// Transition is invoked once per recomputation that actually changes the
// active agent. The caller (pkg/bridge's coupler) reconfigures the tablet
// and host channel from it; Arbiter itself has no opinion on either.
type Transition struct {
	Old, New Handle
}

// Arbiter implements the active-agent selection algorithm of spec.md
// §4.5. It holds no transport state — only the registry and the current
// active handle. clipboard is retained purely so callers can reach it
// alongside the arbiter; Recompute does not touch it; releasing
// guest-owned selections on a transition is the caller's job (it must
// read ownership before clearing it — see bridge.releaseGuestOwnedClipboards).
type Arbiter struct {
	registry  *Registry
	clipboard *ClipboardOwnership
	provider  ActiveSessionResolver
	active    Handle
	log       *slog.Logger
}

// NewArbiter builds an Arbiter over registry and clipboard. provider may
// be nil.
func NewArbiter(registry *Registry, clipboard *ClipboardOwnership, provider ActiveSessionResolver, log *slog.Logger) *Arbiter {
	if log == nil {
		log = slog.Default()
	}
	return &Arbiter{registry: registry, clipboard: clipboard, provider: provider, log: log}
}

// Active returns the current active-agent handle (Zero if none).
func (a *Arbiter) Active() Handle {
	return a.active
}

// Recompute runs the selection algorithm and returns the Transition if the
// active agent changed, or ok=false if it stayed the same.
func (a *Arbiter) Recompute() (Transition, bool) {
	candidate := a.selectCandidate()

	if candidate == a.active {
		return Transition{}, false
	}

	t := Transition{Old: a.active, New: candidate}
	a.active = candidate
	return t, true
}

func (a *Arbiter) selectCandidate() Handle {
	all := a.registry.All()

	if a.provider == nil {
		if len(all) == 1 {
			return all[0].Handle()
		}
		return Zero
	}

	activeSession, ok := a.provider.ActiveSessionID()
	if !ok {
		if len(all) == 1 {
			return all[0].Handle()
		}
		return Zero
	}

	var matches []*Connection
	for _, c := range all {
		if c.SessionID == activeSession {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return Zero
	case 1:
		return matches[0].Handle()
	default:
		a.log.Warn("multiple agents mapped to the same active session; refusing to pick one",
			"session_id", activeSession, "candidate_count", len(matches))
		return Zero
	}
}
