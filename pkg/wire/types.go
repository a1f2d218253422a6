// Package wire implements the host-channel wire protocol: the fixed
// {protocol, type, opaque, size} frame header, per-type payload shapes,
// the capability-dependent clipboard selection prefix, and little-endian
// field conversion.
package wire

// ProtocolVersion is the only protocol version this daemon accepts from the
// host. Frames with any other version are dropped by the codec.
const ProtocolVersion uint32 = 1

// MessageType identifies a host-channel message. Zero and values at or
// beyond maxMessageType are not valid wire types.
type MessageType uint32

const (
	invalidMessageType MessageType = iota

	MsgMouseState
	MsgMonitorsConfig
	MsgReply
	MsgDisplayConfig
	MsgAnnounceCapabilities
	MsgClipboardGrab
	MsgClipboardRequest
	MsgClipboardData
	MsgClipboardRelease
	MsgFileTransferStart
	MsgFileTransferStatus
	MsgFileTransferData
	MsgClientDisconnected
	MsgMaxClipboard
	MsgAudioVolumeSync

	maxMessageType
)

func (t MessageType) Valid() bool {
	return t > invalidMessageType && t < maxMessageType
}

func (t MessageType) String() string {
	switch t {
	case MsgMouseState:
		return "MOUSE_STATE"
	case MsgMonitorsConfig:
		return "MONITORS_CONFIG"
	case MsgReply:
		return "REPLY"
	case MsgDisplayConfig:
		return "DISPLAY_CONFIG"
	case MsgAnnounceCapabilities:
		return "ANNOUNCE_CAPABILITIES"
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
	case MsgClientDisconnected:
		return "CLIENT_DISCONNECTED"
	case MsgMaxClipboard:
		return "MAX_CLIPBOARD"
	case MsgAudioVolumeSync:
		return "AUDIO_VOLUME_SYNC"
	default:
		return "UNKNOWN"
	}
}

// shape describes a message type's size-validation rule.
type shape struct {
	min   int
	exact bool // when true, size must equal min exactly
}

// shapes is the static per-type minimum-payload-size table from spec.md §4.1.
// Clipboard-family entries list the size BEFORE the optional 4-byte selection
// prefix; the codec adds 4 when the selection capability is negotiated.
var shapes = map[MessageType]shape{
	MsgMouseState:           {min: 16, exact: true},             // x,y,buttons,display_id
	MsgMonitorsConfig:       {min: 8, exact: false},              // num,flags + N*20
	MsgReply:                {min: 8, exact: true},               // type,error
	MsgDisplayConfig:        {min: 16, exact: true},              // width,height,depth,flags
	MsgAnnounceCapabilities: {min: 4, exact: false},              // request + N*4 caps
	MsgClipboardGrab:        {min: 4, exact: false},              // N*4 type tags
	MsgClipboardRequest:     {min: 4, exact: true},               // type tag
	MsgClipboardData:        {min: 4, exact: false},              // type tag + data
	MsgClipboardRelease:     {min: 0, exact: true},               // no payload
	MsgFileTransferStart:    {min: 8, exact: false},              // id + metadata
	MsgFileTransferStatus:   {min: 8, exact: true},               // id,status
	MsgFileTransferData:     {min: 12, exact: false},             // id + size(u64) + data
	MsgClientDisconnected:   {min: 0, exact: true},               // no payload
	MsgMaxClipboard:         {min: 4, exact: true},               // value (int32)
	MsgAudioVolumeSync:      {min: 4, exact: false},              // mute,nchannels,pad + N*2
}

// hasSelectionPrefix reports whether msg is one of the four clipboard-family
// types whose wire payload is prefixed by a selection index when the
// selection capability is negotiated.
func hasSelectionPrefix(msg MessageType) bool {
	switch msg {
	case MsgClipboardGrab, MsgClipboardRequest, MsgClipboardData, MsgClipboardRelease:
		return true
	default:
		return false
	}
}

// Selection identifies one of the guest's named clipboard buffers.
type Selection uint8

const (
	SelectionClipboard Selection = 0
	SelectionPrimary   Selection = 1
	SelectionSecondary Selection = 2
)

// HeaderSize is the encoded size of Header on the wire.
const HeaderSize = 16

// Header is the fixed frame header preceding every host-channel payload.
type Header struct {
	Protocol uint32
	Type     MessageType
	Opaque   uint32
	Size     uint32
}
