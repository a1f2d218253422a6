// Package agentproto implements the local-socket agent wire protocol: the
// daemon's side of the {type, arg1, arg2, size} frame exchanged with the
// per-session agent process over a Unix stream socket, in the host's native
// byte order (unlike pkg/wire's little-endian host channel, there is no
// cross-architecture boundary to cross here — daemon and agent always run
// on the same machine).
package agentproto

import "encoding/binary"

// NativeOrder is the byte order used on the agent socket. The agent and
// daemon are always the same process architecture, so frames are encoded
// in whatever order that architecture considers native.
var NativeOrder = binary.NativeEndian

// MessageType identifies an agent-socket message.
type MessageType uint32

const (
	invalidMessageType MessageType = iota

	// MsgVersion is sent daemon→agent immediately after accept, announcing
	// the daemon's protocol version. A mismatched agent must reject it.
	MsgVersion

	// MsgGuestResolution is sent agent→daemon: arg1=width, arg2=height,
	// payload is an array of per-screen entries (see Screen).
	MsgGuestResolution

	// MsgMonitorsConfig is sent daemon→agent: a copy of the host's
	// MONITORS_CONFIG payload, pushed to whichever agent is active.
	MsgMonitorsConfig

	// Clipboard family: arg1=selection, arg2=type tag (where applicable).
	MsgClipboardGrab
	MsgClipboardRequest
	MsgClipboardData
	MsgClipboardRelease

	// File transfer family.
	MsgFileTransferStart
	MsgFileTransferStatus
	MsgFileTransferData
	MsgFileTransferDisable

	// MsgAudioVolumeSync mirrors the host-channel AUDIO_VOLUME_SYNC payload.
	MsgAudioVolumeSync

	// MsgClientDisconnected is broadcast daemon→agent when the host
	// channel's remote client goes away, so the agent can reset local state.
	MsgClientDisconnected

	maxMessageType
)

func (t MessageType) Valid() bool {
	return t > invalidMessageType && t < maxMessageType
}

func (t MessageType) String() string {
	switch t {
	case MsgVersion:
		return "VERSION"
	case MsgGuestResolution:
		return "GUEST_RESOLUTION"
	case MsgMonitorsConfig:
		return "MONITORS_CONFIG"
	case MsgClipboardGrab:
		return "CLIPBOARD_GRAB"
	case MsgClipboardRequest:
		return "CLIPBOARD_REQUEST"
	case MsgClipboardData:
		return "CLIPBOARD_DATA"
	case MsgClipboardRelease:
		return "CLIPBOARD_RELEASE"
	case MsgFileTransferStart:
		return "FILE_XFER_START"
	case MsgFileTransferStatus:
		return "FILE_XFER_STATUS"
	case MsgFileTransferData:
		return "FILE_XFER_DATA"
	case MsgFileTransferDisable:
		return "FILE_XFER_DISABLE"
	case MsgAudioVolumeSync:
		return "AUDIO_VOLUME_SYNC"
	case MsgClientDisconnected:
		return "CLIENT_DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// HeaderSize is the encoded size of Header on the wire.
const HeaderSize = 16

// Header is the fixed frame header preceding every agent-socket payload.
type Header struct {
	Type MessageType
	Arg1 uint32
	Arg2 uint32
	Size uint32
}

// Screen is one entry in a GuestResolution payload: a per-monitor size
// report from the guest's X server. Position is intentionally absent —
// unlike the host-originated MonitorsConfig (which does carry an X/Y
// offset per monitor), this agent-originated message reports only
// dimensions; session.ScreenRect.X/Y are left at zero for entries built
// from this message (see bridge.handleGuestResolution). The uinput
// tablet is sized from GuestResolution.Width/Height alone, so this does
// not affect pointer mapping.
type Screen struct {
	Width  uint32
	Height uint32
}

const screenSize = 8
