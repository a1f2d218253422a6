package bridge

import (
	"context"
	"encoding/binary"

	"github.com/lattice-vm/vdbridged/pkg/agentproto"
	"github.com/lattice-vm/vdbridged/pkg/session"
	"github.com/lattice-vm/vdbridged/pkg/wire"
)

// handleAgentFrame dispatches one validated inbound agent message per
// spec.md §4.4.
func (c *Core) handleAgentFrame(h session.Handle, f agentproto.Frame) {
	switch f.Header.Type {
	case agentproto.MsgGuestResolution:
		c.handleGuestResolution(h, f)
	case agentproto.MsgClipboardGrab, agentproto.MsgClipboardRequest, agentproto.MsgClipboardData, agentproto.MsgClipboardRelease:
		c.handleAgentClipboard(h, f)
	case agentproto.MsgFileTransferStatus:
		c.handleAgentFileTransferStatus(h, f)
	default:
		c.log.Warn("agent message type not routable", "handle", h, "type", f.Header.Type)
	}
}

// handleGuestResolution implements spec.md §4.4's GUEST_XORG_RESOLUTION
// handling: legacy agents reporting 0x0 are ignored without state change;
// a misaligned payload is a protocol violation, fatal to that connection;
// otherwise the stored screen list is replaced and the coupler re-run.
func (c *Core) handleGuestResolution(h session.Handle, f agentproto.Frame) {
	res, err := agentproto.DecodeGuestResolution(f.Header, f.Payload)
	if err != nil {
		c.log.Error("malformed guest resolution; destroying agent connection", "handle", h, "err", err)
		c.disconnectAgent(h)
		return
	}
	if res.IsLegacy() {
		return
	}

	conn, ok := c.reg.Lookup(h)
	if !ok {
		return
	}

	// agentproto.Screen carries no X/Y (see its doc comment): these
	// entries are size-only, so X/Y stay zero here.
	screens := make([]session.ScreenRect, len(res.Screens))
	for i, s := range res.Screens {
		screens[i] = session.ScreenRect{ID: uint32(i), Width: s.Width, Height: s.Height}
	}
	conn.Width = res.Width
	conn.Height = res.Height
	conn.Screens = screens

	if h == c.arb.Active() {
		c.coupler(h)
	}
}

// handleAgentClipboard implements spec.md §4.4's agent-originated
// clipboard validation and upstream translation.
func (c *Core) handleAgentClipboard(h session.Handle, f agentproto.Frame) {
	if h != c.arb.Active() {
		c.log.Warn("clipboard message from non-active agent; dropping", "handle", h, "type", f.Header.Type)
		return
	}
	if !c.caps.Has(wire.CapClipboardByDemand) {
		c.log.Warn("clipboard message but host hasn't negotiated clipboard-by-demand; dropping", "handle", h)
		return
	}

	sel := wire.Selection(f.Header.Arg1)
	if sel > wire.SelectionSecondary {
		c.log.Error("malformed clipboard selection from agent; destroying connection", "handle", h, "selection", f.Header.Arg1)
		c.disconnectAgent(h)
		return
	}

	switch f.Header.Type {
	case agentproto.MsgClipboardGrab:
		c.clipboard.SetOwned(sel, true)
		types, err := agentproto.DecodeClipboardGrabTypes(f.Payload)
		if err != nil {
			c.log.Error("malformed clipboard grab from agent; destroying connection", "handle", h, "err", err)
			c.disconnectAgent(h)
			return
		}
		c.writeHost(wire.Frame{
			Header:    wire.Header{Type: wire.MsgClipboardGrab},
			Selection: sel,
			Payload:   wire.EncodeClipboardGrab(wire.ClipboardGrab{Types: types}),
		})
	case agentproto.MsgClipboardRequest:
		c.writeHost(wire.Frame{
			Header:    wire.Header{Type: wire.MsgClipboardRequest},
			Selection: sel,
			Payload:   encodeLETypeTag(f.Header.Arg2),
		})
	case agentproto.MsgClipboardData:
		payload := f.Payload
		if max := c.maxClipboard; max != nil && *max >= 0 && len(payload) > int(*max) {
			c.log.Warn("oversized clipboard data from agent; substituting empty payload", "handle", h, "len", len(payload), "max", *max)
			payload = nil
		}
		c.writeHost(wire.Frame{
			Header:    wire.Header{Type: wire.MsgClipboardData},
			Selection: sel,
			Payload:   wire.EncodeClipboardData(f.Header.Arg2, payload),
		})
	case agentproto.MsgClipboardRelease:
		c.clipboard.SetOwned(sel, false)
		c.writeHost(wire.Frame{
			Header:    wire.Header{Type: wire.MsgClipboardRelease},
			Selection: sel,
		})
	}
}

// handleAgentFileTransferStatus implements spec.md §4.4's transfer-status
// forwarding and registry bookkeeping: CAN_SEND_DATA opens a registry
// entry so subsequent host-originated FILE_XFER_DATA routes back to this
// agent; any terminal status removes it.
func (c *Core) handleAgentFileTransferStatus(h session.Handle, f agentproto.Frame) {
	if len(f.Payload) != 8 {
		c.log.Error("malformed file-xfer status from agent; destroying connection", "handle", h)
		c.disconnectAgent(h)
		return
	}
	id := agentproto.NativeOrder.Uint32(f.Payload[0:4])
	status := wire.FileTransferStatusCode(agentproto.NativeOrder.Uint32(f.Payload[4:8]))

	if status == wire.FileTransferCanSendData {
		c.transfers.Start(id, h)
	} else {
		c.transfers.Finish(id)
	}

	c.writeHost(wire.Frame{
		Header:  wire.Header{Type: wire.MsgFileTransferStatus},
		Payload: wire.EncodeFileTransferStatus(wire.FileTransferStatus{ID: id, Status: status}),
	})
}

// encodeLETypeTag encodes a clipboard content type tag in the host
// channel's little-endian wire order (agentproto carries it in native
// order; wire always carries it little-endian, per spec.md §3).
func encodeLETypeTag(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}

func bgCtx() context.Context {
	return context.Background()
}
