package bridge

import (
	"github.com/lattice-vm/vdbridged/pkg/agentproto"
	"github.com/lattice-vm/vdbridged/pkg/wire"
)

// handleHostFrame dispatches one validated inbound host message per
// spec.md §4.2/§4.3.
func (c *Core) handleHostFrame(f wire.Frame) {
	switch f.Header.Type {
	case wire.MsgMouseState:
		c.handleMouseState(f)
	case wire.MsgMonitorsConfig:
		c.handleMonitorsConfig(f)
	case wire.MsgAnnounceCapabilities:
		c.handleAnnounceCapabilities(f)
	case wire.MsgClipboardGrab, wire.MsgClipboardRequest, wire.MsgClipboardData, wire.MsgClipboardRelease:
		c.handleHostClipboard(f)
	case wire.MsgFileTransferStart:
		c.handleFileTransferStart(f)
	case wire.MsgFileTransferStatus, wire.MsgFileTransferData:
		c.handleFileTransferRoute(f)
	case wire.MsgClientDisconnected:
		c.handleClientDisconnected()
	case wire.MsgMaxClipboard:
		c.handleMaxClipboard(f)
	case wire.MsgAudioVolumeSync:
		c.handleAudioVolumeSync(f)
	default:
		c.log.Warn("host message type not routable", "type", f.Header.Type)
	}
}

func (c *Core) handleMouseState(f wire.Frame) {
	ms, err := wire.DecodeMouseState(f.Payload)
	if err != nil {
		c.log.Error("malformed mouse state; dropping", "err", err)
		return
	}

	if !c.tabletDev.IsOpen() {
		active := c.arb.Active()
		conn, ok := c.reg.Lookup(active)
		if !ok || !conn.HasResolution() {
			c.log.Error("mouse state with no tablet and no resolved active agent; fatal")
			c.quit = true
			return
		}
		if err := c.tabletDev.Open(int32(conn.Width), int32(conn.Height)); err != nil {
			c.log.Error("tablet recreate failed; fatal", "err", err)
			c.quit = true
			return
		}
	}

	if err := c.tabletDev.SendState(ms.X, ms.Y, ms.Buttons); err != nil {
		c.log.Error("tablet write failed; fatal", "err", err)
		c.quit = true
	}
}

func (c *Core) handleMonitorsConfig(f wire.Frame) {
	cfg, err := wire.DecodeMonitorsConfig(f.Payload)
	if err != nil {
		c.log.Error("malformed monitors config; dropping", "err", err)
		return
	}

	c.monitors.Set(cfg)

	if c.confWrite != nil {
		if err := c.confWrite.Write(cfg); err != nil {
			c.log.Warn("derived display config write failed", "err", err)
		}
	}

	if active := c.arb.Active(); active.Valid() {
		c.writeAgent(active, monitorsConfigFrame(cfg))
	}

	c.writeHost(wire.Frame{
		Header:  wire.Header{Type: wire.MsgReply},
		Payload: wire.EncodeReply(wire.Reply{ForType: wire.MsgMonitorsConfig, Error: wire.ReplySuccess}),
	})
}

func (c *Core) handleAnnounceCapabilities(f wire.Frame) {
	caps, err := wire.DecodeCapabilities(f.Payload)
	if err != nil {
		c.log.Error("malformed capabilities announcement; dropping", "err", err)
		return
	}

	c.caps = caps.Set

	if caps.Request {
		if c.clientConnected {
			c.broadcastClientDisconnected()
		}
		c.clientConnected = true
		c.sendCapabilitiesAnnouncement(false)
	}
}

// sendCapabilitiesAnnouncement writes the daemon's own capabilities to
// the host. request mirrors the "request=1" unsolicited announcement
// sent when the host channel is first opened (spec.md §4.2, §7's
// supplemented unsolicited-announcement behavior).
func (c *Core) sendCapabilitiesAnnouncement(request bool) {
	payload := wire.EncodeCapabilities(wire.Capabilities{Request: request, Set: wire.DaemonCapabilities()})
	c.writeHost(wire.Frame{
		Header:  wire.Header{Type: wire.MsgAnnounceCapabilities},
		Payload: payload,
	})
}

func (c *Core) handleHostClipboard(f wire.Frame) {
	active := c.arb.Active()
	if !active.Valid() {
		c.log.Warn("clipboard message with no active agent; dropping", "type", f.Header.Type)
		return
	}

	sel := f.Selection
	if !c.caps.Has(wire.CapClipboardSelection) {
		sel = wire.SelectionClipboard
	}

	switch f.Header.Type {
	case wire.MsgClipboardGrab:
		c.clipboard.SetOwned(sel, false)
		types, err := wire.DecodeClipboardGrab(f.Payload)
		if err != nil {
			c.log.Error("malformed clipboard grab; dropping", "err", err)
			return
		}
		c.writeAgent(active, agentproto.Frame{
			Header:  agentproto.Header{Type: agentproto.MsgClipboardGrab, Arg1: uint32(sel)},
			Payload: agentproto.EncodeClipboardGrabTypes(types.Types),
		})
	case wire.MsgClipboardRequest:
		tag, err := wire.DecodeClipboardTypeTag(f.Payload)
		if err != nil {
			c.log.Error("malformed clipboard request; dropping", "err", err)
			return
		}
		c.writeAgent(active, agentproto.Frame{
			Header: agentproto.Header{Type: agentproto.MsgClipboardRequest, Arg1: uint32(sel), Arg2: tag},
		})
	case wire.MsgClipboardData:
		tag, err := wire.DecodeClipboardTypeTag(f.Payload)
		if err != nil {
			c.log.Error("malformed clipboard data; dropping", "err", err)
			return
		}
		c.writeAgent(active, agentproto.Frame{
			Header:  agentproto.Header{Type: agentproto.MsgClipboardData, Arg1: uint32(sel), Arg2: tag},
			Payload: f.Payload[4:],
		})
	case wire.MsgClipboardRelease:
		c.writeAgent(active, agentproto.Frame{
			Header: agentproto.Header{Type: agentproto.MsgClipboardRelease, Arg1: uint32(sel)},
		})
	}
}

func (c *Core) handleFileTransferStart(f wire.Frame) {
	start, err := wire.DecodeFileTransferStart(f.Payload)
	if err != nil {
		c.log.Error("malformed file-xfer start; dropping", "err", err)
		return
	}

	active := c.arb.Active()
	if !active.Valid() {
		c.writeHost(statusFrame(start.ID, wire.FileTransferCancelled))
		return
	}

	if conn, ok := c.reg.Lookup(active); ok && conn.SessionID != "" && c.provider != nil && c.provider.Locked(bgCtx(), conn.SessionID) {
		c.writeHost(statusFrame(start.ID, wire.FileTransferError))
		return
	}

	c.writeAgent(active, agentproto.Frame{
		Header:  agentproto.Header{Type: agentproto.MsgFileTransferStart, Arg1: start.ID},
		Payload: start.Metadata,
	})
}

func (c *Core) handleFileTransferRoute(f wire.Frame) {
	var id uint32
	switch f.Header.Type {
	case wire.MsgFileTransferStatus:
		st, err := wire.DecodeFileTransferStatus(f.Payload)
		if err != nil {
			c.log.Error("malformed file-xfer status; dropping", "err", err)
			return
		}
		id = st.ID
	case wire.MsgFileTransferData:
		data, err := wire.DecodeFileTransferData(f.Payload)
		if err != nil {
			c.log.Error("malformed file-xfer data; dropping", "err", err)
			return
		}
		id = data.ID
	}

	owner, ok := c.transfers.Owner(id)
	if !ok {
		return // transfer was cancelled; silently drop per spec.md §4.3
	}

	switch f.Header.Type {
	case wire.MsgFileTransferStatus:
		st, _ := wire.DecodeFileTransferStatus(f.Payload)
		c.writeAgent(owner, agentproto.Frame{
			Header: agentproto.Header{Type: agentproto.MsgFileTransferStatus, Arg1: st.ID, Arg2: uint32(st.Status)},
		})
	case wire.MsgFileTransferData:
		data, _ := wire.DecodeFileTransferData(f.Payload)
		c.writeAgent(owner, agentproto.Frame{
			Header:  agentproto.Header{Type: agentproto.MsgFileTransferData, Arg1: data.ID},
			Payload: data.Data,
		})
	}
}

// handleClientDisconnected implements spec.md §4.3's CLIENT_DISCONNECTED
// handling. The source also resets the host port's read state
// (vdagent_virtio_port_reset); that step is a no-op here because pumpHost
// reads whole frames with wire.ReadFrame and never retains a partial-read
// buffer across calls, so there is no stale state to discard.
func (c *Core) handleClientDisconnected() {
	c.broadcastClientDisconnected()
	c.clientConnected = false
}

func (c *Core) broadcastClientDisconnected() {
	c.broadcastAgents(agentproto.Frame{Header: agentproto.Header{Type: agentproto.MsgClientDisconnected}})
}

func (c *Core) handleMaxClipboard(f wire.Frame) {
	mc, err := wire.DecodeMaxClipboard(f.Payload)
	if err != nil {
		c.log.Error("malformed max clipboard; dropping", "err", err)
		return
	}
	v := mc.Bytes
	c.maxClipboard = &v
}

func (c *Core) handleAudioVolumeSync(f wire.Frame) {
	active := c.arb.Active()
	if !active.Valid() {
		return
	}
	a, err := wire.DecodeAudioVolumeSync(f.Payload)
	if err != nil {
		c.log.Error("malformed audio volume sync; dropping", "err", err)
		return
	}
	c.writeAgent(active, agentproto.Frame{
		Header:  agentproto.Header{Type: agentproto.MsgAudioVolumeSync},
		Payload: agentproto.EncodeAudioVolumeSync(agentproto.AudioVolumeSync{Mute: a.Mute, Volume: a.Volume}),
	})
}

func monitorsConfigFrame(cfg wire.MonitorsConfig) agentproto.Frame {
	return agentproto.Frame{
		Header:  agentproto.Header{Type: agentproto.MsgMonitorsConfig},
		Payload: wire.EncodeMonitorsConfig(cfg),
	}
}

func clipboardReleaseFrame(sel wire.Selection) wire.Frame {
	return wire.Frame{
		Header:    wire.Header{Type: wire.MsgClipboardRelease},
		Selection: sel,
	}
}

func statusFrame(id uint32, status wire.FileTransferStatusCode) wire.Frame {
	return wire.Frame{
		Header:  wire.Header{Type: wire.MsgFileTransferStatus},
		Payload: wire.EncodeFileTransferStatus(wire.FileTransferStatus{ID: id, Status: status}),
	}
}
