package bridge

import (
	"context"

	"github.com/sourcegraph/conc"

	"github.com/lattice-vm/vdbridged/pkg/agentlink"
	"github.com/lattice-vm/vdbridged/pkg/agentproto"
	"github.com/lattice-vm/vdbridged/pkg/session"
	"github.com/lattice-vm/vdbridged/pkg/wire"
)

// acceptAgent finishes registering a newly-accepted agent connection:
// resolve its session id, add it to the registry, send the version
// announcement, start its reader goroutine, and re-run the arbiter.
func (c *Core) acceptAgent(ctx context.Context, ac *agentlink.Conn, wg *conc.WaitGroup) {
	var sessionID string
	if c.provider != nil {
		sessionID, _ = c.provider.SessionForPID(ctx, ac.PeerPID)
	}

	conn := &session.Connection{
		PeerPID:   ac.PeerPID,
		SessionID: sessionID,
		DebugID:   c.newDebugID(),
	}
	handle := c.reg.Add(conn)
	c.agents[handle] = &agentConn{conn: ac, handle: handle}

	c.log.Info("agent connected", "handle", handle, "pid", ac.PeerPID, "session_id", sessionID, "debug_id", conn.DebugID)

	if err := agentproto.WriteFrame(ac, versionFrame()); err != nil {
		c.log.Warn("failed to send version announcement", "handle", handle, "err", err)
	}

	wg.Go(func() { c.pumpAgent(ctx, handle, ac) })

	c.reconcileArbiter()
}

func versionFrame() agentproto.Frame {
	payload := agentproto.EncodeVersion(agentproto.Version{Protocol: wire.ProtocolVersion})
	return agentproto.Frame{Header: agentproto.Header{Type: agentproto.MsgVersion}, Payload: payload}
}

// pumpAgent reads frames from one agent connection, forwarding each as an
// event, until a read error or protocol violation ends the connection.
func (c *Core) pumpAgent(ctx context.Context, h session.Handle, ac *agentlink.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := agentproto.ReadFrame(ac)
		if err != nil {
			select {
			case c.events <- event{kind: evAgentReadErr, agent: h, agentErr: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case c.events <- event{kind: evAgentFrame, agent: h, agentMsg: frame}:
		case <-ctx.Done():
			return
		}
	}
}

// disconnectAgent tears down the agent at h: cancel its outstanding
// transfers (spec.md §4.6), remove it from the registry, then
// re-run the arbiter.
func (c *Core) disconnectAgent(h session.Handle) {
	c.removeAgent(h)
	c.reconcileArbiter()
}

func (c *Core) removeAgent(h session.Handle) {
	for _, id := range c.transfers.CancelForHandle(h) {
		c.writeHost(statusFrame(id, wire.FileTransferCancelled))
	}

	if ac, ok := c.agents[h]; ok {
		ac.conn.Close()
		delete(c.agents, h)
	}
	c.reg.Remove(h)
	c.log.Info("agent disconnected", "handle", h)
}

// writeAgent encodes and writes a frame to the agent at h, if still
// connected. It silently drops the frame if h has since disconnected —
// matching spec.md §7's "silently drop" policy for races between an
// in-flight outbound message and an agent disconnect.
func (c *Core) writeAgent(h session.Handle, f agentproto.Frame) {
	ac, ok := c.agents[h]
	if !ok {
		return
	}
	if err := agentproto.WriteFrame(ac.conn, f); err != nil {
		c.log.Warn("agent write failed", "handle", h, "err", err)
	}
}

// broadcastAgents writes f to every currently connected agent.
func (c *Core) broadcastAgents(f agentproto.Frame) {
	for h := range c.agents {
		c.writeAgent(h, f)
	}
}
