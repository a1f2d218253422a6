package wire

import (
	"encoding/binary"
	"fmt"
)

// MonitorRect describes one monitor in a MonitorsConfig — a rectangle
// with a position, per spec.md §3/§6.
type MonitorRect struct {
	Height uint32
	Width  uint32
	Depth  uint32
	X      int32
	Y      int32
}

const monitorRectSize = 20

// MouseState is the fixed-shape MOUSE_STATE payload.
type MouseState struct {
	X, Y      int32
	Buttons   uint32
	DisplayID uint32
}

func DecodeMouseState(p []byte) (MouseState, error) {
	if len(p) != 16 {
		return MouseState{}, fmt.Errorf("wire: mouse state wants 16 bytes, got %d", len(p))
	}
	return MouseState{
		X:         int32(binary.LittleEndian.Uint32(p[0:4])),
		Y:         int32(binary.LittleEndian.Uint32(p[4:8])),
		Buttons:   binary.LittleEndian.Uint32(p[8:12]),
		DisplayID: binary.LittleEndian.Uint32(p[12:16]),
	}, nil
}

// MonitorsConfig is the variable-shape MONITORS_CONFIG payload.
type MonitorsConfig struct {
	Flags    uint32
	Monitors []MonitorRect
}

func DecodeMonitorsConfig(p []byte) (MonitorsConfig, error) {
	if len(p) < 8 {
		return MonitorsConfig{}, fmt.Errorf("wire: monitors config too short: %d", len(p))
	}
	num := binary.LittleEndian.Uint32(p[0:4])
	flags := binary.LittleEndian.Uint32(p[4:8])
	rest := p[8:]
	if uint64(num)*monitorRectSize != uint64(len(rest)) {
		return MonitorsConfig{}, fmt.Errorf("wire: monitors config declares %d monitors but payload has %d bytes", num, len(rest))
	}
	monitors := make([]MonitorRect, num)
	for i := range monitors {
		off := i * monitorRectSize
		monitors[i] = MonitorRect{
			Height: binary.LittleEndian.Uint32(rest[off : off+4]),
			Width:  binary.LittleEndian.Uint32(rest[off+4 : off+8]),
			Depth:  binary.LittleEndian.Uint32(rest[off+8 : off+12]),
			X:      int32(binary.LittleEndian.Uint32(rest[off+12 : off+16])),
			Y:      int32(binary.LittleEndian.Uint32(rest[off+16 : off+20])),
		}
	}
	return MonitorsConfig{Flags: flags, Monitors: monitors}, nil
}

func EncodeMonitorsConfig(mc MonitorsConfig) []byte {
	out := make([]byte, 8+len(mc.Monitors)*monitorRectSize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(mc.Monitors)))
	binary.LittleEndian.PutUint32(out[4:8], mc.Flags)
	for i, m := range mc.Monitors {
		off := 8 + i*monitorRectSize
		binary.LittleEndian.PutUint32(out[off:off+4], m.Height)
		binary.LittleEndian.PutUint32(out[off+4:off+8], m.Width)
		binary.LittleEndian.PutUint32(out[off+8:off+12], m.Depth)
		binary.LittleEndian.PutUint32(out[off+12:off+16], uint32(m.X))
		binary.LittleEndian.PutUint32(out[off+16:off+20], uint32(m.Y))
	}
	return out
}

// ReplyError is the error code carried in a REPLY message.
type ReplyError uint32

const (
	ReplySuccess ReplyError = 0
	ReplyError_  ReplyError = 1
)

// Reply is the fixed-shape REPLY payload sent upstream in acknowledgement
// of a MONITORS_CONFIG.
type Reply struct {
	ForType MessageType
	Error   ReplyError
}

func EncodeReply(r Reply) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:4], uint32(r.ForType))
	binary.LittleEndian.PutUint32(out[4:8], uint32(r.Error))
	return out
}

// Capabilities is the variable-shape ANNOUNCE_CAPABILITIES payload.
type Capabilities struct {
	Request bool
	Set     *CapabilitySet
}

func DecodeCapabilities(p []byte) (Capabilities, error) {
	if len(p) < 4 {
		return Capabilities{}, fmt.Errorf("wire: capabilities payload too short: %d", len(p))
	}
	request := binary.LittleEndian.Uint32(p[0:4]) != 0
	words := make([]uint32, (len(p)-4)/4)
	for i := range words {
		off := 4 + i*4
		words[i] = binary.LittleEndian.Uint32(p[off : off+4])
	}
	return Capabilities{Request: request, Set: NewCapabilitySetFromWords(words)}, nil
}

func EncodeCapabilities(c Capabilities) []byte {
	words := c.Set.Words()
	out := make([]byte, 4+len(words)*4)
	if c.Request {
		binary.LittleEndian.PutUint32(out[0:4], 1)
	}
	for i, w := range words {
		off := 4 + i*4
		binary.LittleEndian.PutUint32(out[off:off+4], w)
	}
	return out
}

// ClipboardGrab is the variable-shape CLIPBOARD_GRAB payload: a list of
// content type tags the guest (or host) is offering.
type ClipboardGrab struct {
	Types []uint32
}

func DecodeClipboardGrab(p []byte) (ClipboardGrab, error) {
	if len(p)%4 != 0 {
		return ClipboardGrab{}, fmt.Errorf("wire: clipboard grab payload not a multiple of 4: %d", len(p))
	}
	types := make([]uint32, len(p)/4)
	for i := range types {
		types[i] = binary.LittleEndian.Uint32(p[i*4 : i*4+4])
	}
	return ClipboardGrab{Types: types}, nil
}

func EncodeClipboardGrab(g ClipboardGrab) []byte {
	out := make([]byte, len(g.Types)*4)
	for i, t := range g.Types {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], t)
	}
	return out
}

// ClipboardTypeTag decodes/encodes the 4-byte type tag carried by
// CLIPBOARD_REQUEST and as the first 4 bytes of CLIPBOARD_DATA.
func DecodeClipboardTypeTag(p []byte) (uint32, error) {
	if len(p) < 4 {
		return 0, fmt.Errorf("wire: clipboard type tag too short: %d", len(p))
	}
	return binary.LittleEndian.Uint32(p[0:4]), nil
}

func EncodeClipboardData(typeTag uint32, data []byte) []byte {
	out := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(out[0:4], typeTag)
	copy(out[4:], data)
	return out
}

// FileTransferStatusCode mirrors the guest-facing transfer status codes.
type FileTransferStatusCode uint32

const (
	FileTransferSuccess      FileTransferStatusCode = 0
	FileTransferCancelled    FileTransferStatusCode = 1
	FileTransferError        FileTransferStatusCode = 2
	FileTransferAgentNotFound FileTransferStatusCode = 3
	FileTransferCanSendData  FileTransferStatusCode = 4
	FileTransferNotEnoughSpace FileTransferStatusCode = 5
	FileTransferSessionLocked FileTransferStatusCode = 6
	FileTransferDisabled     FileTransferStatusCode = 7
)

// FileTransferStart is the variable-shape FILE_XFER_START payload: a
// transfer id followed by opaque metadata (filename, size, ...) that the
// daemon forwards verbatim to the active agent.
type FileTransferStart struct {
	ID       uint32
	Metadata []byte
}

func DecodeFileTransferStart(p []byte) (FileTransferStart, error) {
	if len(p) < 4 {
		return FileTransferStart{}, fmt.Errorf("wire: file-xfer start too short: %d", len(p))
	}
	return FileTransferStart{ID: binary.LittleEndian.Uint32(p[0:4]), Metadata: p[4:]}, nil
}

// FileTransferStatus is the fixed-shape FILE_XFER_STATUS payload.
type FileTransferStatus struct {
	ID     uint32
	Status FileTransferStatusCode
}

func DecodeFileTransferStatus(p []byte) (FileTransferStatus, error) {
	if len(p) != 8 {
		return FileTransferStatus{}, fmt.Errorf("wire: file-xfer status wants 8 bytes, got %d", len(p))
	}
	return FileTransferStatus{
		ID:     binary.LittleEndian.Uint32(p[0:4]),
		Status: FileTransferStatusCode(binary.LittleEndian.Uint32(p[4:8])),
	}, nil
}

func EncodeFileTransferStatus(s FileTransferStatus) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:4], s.ID)
	binary.LittleEndian.PutUint32(out[4:8], uint32(s.Status))
	return out
}

// FileTransferData is the variable-shape FILE_XFER_DATA payload.
type FileTransferData struct {
	ID   uint32
	Data []byte
}

func DecodeFileTransferData(p []byte) (FileTransferData, error) {
	if len(p) < 12 {
		return FileTransferData{}, fmt.Errorf("wire: file-xfer data too short: %d", len(p))
	}
	id := binary.LittleEndian.Uint32(p[0:4])
	size := binary.LittleEndian.Uint64(p[4:12])
	data := p[12:]
	if uint64(len(data)) != size {
		return FileTransferData{}, fmt.Errorf("wire: file-xfer data declares %d bytes but payload has %d", size, len(data))
	}
	return FileTransferData{ID: id, Data: data}, nil
}

// MaxClipboard is the fixed-shape MAX_CLIPBOARD payload. A negative value
// means "no limit".
type MaxClipboard struct {
	Bytes int32
}

func DecodeMaxClipboard(p []byte) (MaxClipboard, error) {
	if len(p) != 4 {
		return MaxClipboard{}, fmt.Errorf("wire: max clipboard wants 4 bytes, got %d", len(p))
	}
	return MaxClipboard{Bytes: int32(binary.LittleEndian.Uint32(p[0:4]))}, nil
}

// AudioVolumeSync is the variable-shape AUDIO_VOLUME_SYNC payload.
type AudioVolumeSync struct {
	Mute   bool
	Volume []uint16
}

func DecodeAudioVolumeSync(p []byte) (AudioVolumeSync, error) {
	if len(p) < 4 {
		return AudioVolumeSync{}, fmt.Errorf("wire: audio volume sync too short: %d", len(p))
	}
	mute := p[0] != 0
	nchannels := int(p[1])
	rest := p[4:]
	if len(rest) != nchannels*2 {
		return AudioVolumeSync{}, fmt.Errorf("wire: audio volume sync declares %d channels but payload has %d bytes", nchannels, len(rest))
	}
	vols := make([]uint16, nchannels)
	for i := range vols {
		vols[i] = binary.LittleEndian.Uint16(rest[i*2 : i*2+2])
	}
	return AudioVolumeSync{Mute: mute, Volume: vols}, nil
}

func EncodeAudioVolumeSync(a AudioVolumeSync) []byte {
	out := make([]byte, 4+len(a.Volume)*2)
	if a.Mute {
		out[0] = 1
	}
	out[1] = byte(len(a.Volume))
	for i, v := range a.Volume {
		binary.LittleEndian.PutUint16(out[4+i*2:4+i*2+2], v)
	}
	return out
}
