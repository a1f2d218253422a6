package agentproto

import "fmt"

// Version is the fixed-shape VERSION payload, sent daemon→agent right
// after accept.
type Version struct {
	Protocol uint32
}

func EncodeVersion(v Version) []byte {
	out := make([]byte, 4)
	NativeOrder.PutUint32(out, v.Protocol)
	return out
}

func DecodeVersion(p []byte) (Version, error) {
	if len(p) != 4 {
		return Version{}, fmt.Errorf("agentproto: version wants 4 bytes, got %d", len(p))
	}
	return Version{Protocol: NativeOrder.Uint32(p)}, nil
}

// GuestResolution is the agent→daemon payload carried alongside
// Header.Arg1 (width) and Header.Arg2 (height): the legacy top-level size
// plus the per-screen array. A resolution with Arg1==Arg2==0 is a legacy
// agent and must be ignored without state change.
type GuestResolution struct {
	Width   uint32
	Height  uint32
	Screens []Screen
}

func DecodeGuestResolution(hdr Header, p []byte) (GuestResolution, error) {
	if len(p)%screenSize != 0 {
		return GuestResolution{}, fmt.Errorf("agentproto: guest resolution payload not a multiple of %d: %d", screenSize, len(p))
	}
	screens := make([]Screen, len(p)/screenSize)
	for i := range screens {
		off := i * screenSize
		screens[i] = Screen{
			Width:  NativeOrder.Uint32(p[off : off+4]),
			Height: NativeOrder.Uint32(p[off+4 : off+8]),
		}
	}
	return GuestResolution{Width: hdr.Arg1, Height: hdr.Arg2, Screens: screens}, nil
}

// IsLegacy reports whether this resolution report carries no usable
// dimensions and should be ignored per spec.
func (g GuestResolution) IsLegacy() bool {
	return g.Width == 0 && g.Height == 0
}

// ClipboardGrab is arg1=selection, payload=type tag list.
func EncodeClipboardGrabTypes(types []uint32) []byte {
	out := make([]byte, len(types)*4)
	for i, t := range types {
		NativeOrder.PutUint32(out[i*4:i*4+4], t)
	}
	return out
}

func DecodeClipboardGrabTypes(p []byte) ([]uint32, error) {
	if len(p)%4 != 0 {
		return nil, fmt.Errorf("agentproto: clipboard grab payload not a multiple of 4: %d", len(p))
	}
	types := make([]uint32, len(p)/4)
	for i := range types {
		types[i] = NativeOrder.Uint32(p[i*4 : i*4+4])
	}
	return types, nil
}

// FileTransferStatusCode mirrors pkg/wire.FileTransferStatusCode for the
// agent side of a transfer.
type FileTransferStatusCode uint32

const (
	FileTransferSuccess        FileTransferStatusCode = 0
	FileTransferCancelled      FileTransferStatusCode = 1
	FileTransferError          FileTransferStatusCode = 2
	FileTransferAgentNotFound  FileTransferStatusCode = 3
	FileTransferCanSendData    FileTransferStatusCode = 4
	FileTransferNotEnoughSpace FileTransferStatusCode = 5
	FileTransferSessionLocked  FileTransferStatusCode = 6
	FileTransferDisabled       FileTransferStatusCode = 7
)

// AudioVolumeSync mirrors pkg/wire.AudioVolumeSync for the agent side.
type AudioVolumeSync struct {
	Mute   bool
	Volume []uint16
}

func EncodeAudioVolumeSync(a AudioVolumeSync) []byte {
	out := make([]byte, 4+len(a.Volume)*2)
	if a.Mute {
		out[0] = 1
	}
	out[1] = byte(len(a.Volume))
	for i, v := range a.Volume {
		NativeOrder.PutUint16(out[4+i*2:4+i*2+2], v)
	}
	return out
}

func DecodeAudioVolumeSync(p []byte) (AudioVolumeSync, error) {
	if len(p) < 4 {
		return AudioVolumeSync{}, fmt.Errorf("agentproto: audio volume sync too short: %d", len(p))
	}
	mute := p[0] != 0
	nchannels := int(p[1])
	rest := p[4:]
	if len(rest) != nchannels*2 {
		return AudioVolumeSync{}, fmt.Errorf("agentproto: audio volume sync declares %d channels but payload has %d bytes", nchannels, len(rest))
	}
	vols := make([]uint16, nchannels)
	for i := range vols {
		vols[i] = NativeOrder.Uint16(rest[i*2 : i*2+2])
	}
	return AudioVolumeSync{Mute: mute, Volume: vols}, nil
}
