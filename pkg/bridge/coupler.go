package bridge

import (
	"context"

	"github.com/lattice-vm/vdbridged/pkg/agentproto"
	"github.com/lattice-vm/vdbridged/pkg/session"
	"github.com/lattice-vm/vdbridged/pkg/wire"
)

// reconcileArbiter re-runs the active-agent selection algorithm
// (spec.md §4.5) and, if it changed, performs every side effect in the
// same synchronous call — completing before the next event is read, per
// the atomicity guarantee in spec.md §5.
func (c *Core) reconcileArbiter() {
	t, changed := c.arb.Recompute()
	if !changed {
		return
	}

	c.log.Info("active agent changed", "old", t.Old, "new", t.New)

	if t.New.Valid() {
		if conn, ok := c.reg.Lookup(t.New); ok && c.provider != nil && conn.SessionID != "" {
			if !isHumanSession(conn.SessionID) {
				c.writeAgent(t.New, agentproto.Frame{Header: agentproto.Header{Type: agentproto.MsgFileTransferDisable}})
			}
		}
		if cfg, ok := c.monitors.Get(); ok {
			c.writeAgent(t.New, monitorsConfigFrame(cfg))
		}
	}

	c.releaseGuestOwnedClipboards()

	c.coupler(t.New)
}

// isHumanSession is a placeholder policy hook: spec.md §4.5 step 5 only
// fires for non-human-user sessions (e.g. a greeter or kiosk session);
// the session-info Provider interface carries no "session class" query,
// so until one is added every resolved session is treated as human.
func isHumanSession(sessionID string) bool {
	return true
}

// releaseGuestOwnedClipboards broadcasts CLIPBOARD_RELEASE upstream for
// every selection the guest owned, per the open question in spec.md §9:
// the loop stops before SelectionSecondary, matching the source's
// `sel < SECONDARY` bound.
func (c *Core) releaseGuestOwnedClipboards() {
	for _, sel := range []wire.Selection{wire.SelectionClipboard, wire.SelectionPrimary} {
		if c.clipboard.Owned(sel) {
			c.writeHost(clipboardReleaseFrame(sel))
		}
	}
	c.clipboard.ResetAll()
}

// coupler implements spec.md §4.5's coupler: the tablet and host channel
// may only be open together, gated on the active agent having reported a
// non-empty screen list.
func (c *Core) coupler(active session.Handle) {
	conn, ok := c.reg.Lookup(active)
	if !ok || !conn.HasResolution() {
		if !c.cfg.StaticTablet && c.tabletDev.IsOpen() {
			if err := c.tabletDev.Close(); err != nil {
				c.log.Warn("tablet close failed", "err", err)
			}
		}
		c.closeHostChannel()
		return
	}

	if err := c.tabletDev.Open(int32(conn.Width), int32(conn.Height)); err != nil {
		c.log.Error("tablet open failed for active agent; fatal", "handle", active, "err", err)
		c.quit = true
		return
	}

	if c.host == nil {
		if err := c.openHostChannel(); err != nil {
			c.log.Error("host channel open failed", "err", err)
			return
		}
		c.startHostPump(context.Background())
		c.sendCapabilitiesAnnouncement(true)
	}
}

// startHostPump starts the host-channel reader after the coupler reopens
// the channel mid-run. This goroutine is not under Run's conc.WaitGroup;
// Run's initial reader and the reader restarted by handleHostReadError
// are.
func (c *Core) startHostPump(ctx context.Context) {
	go c.pumpHost(ctx)
}
