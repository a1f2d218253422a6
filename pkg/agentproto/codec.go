package agentproto

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnknownType = errors.New("agentproto: unknown message type")
	ErrBadSize     = errors.New("agentproto: payload size violates shape")
)

// Frame is a validated agent-socket message. Payload fields remain in
// native byte order; per-message Decode/Encode helpers in messages.go
// interpret them.
type Frame struct {
	Header  Header
	Payload []byte
}

// shape mirrors pkg/wire's per-type minimum-size table, adapted to the
// agent protocol's frame layout (no selection prefix — selection travels
// in the header's arg1 field instead).
type shape struct {
	min   int
	exact bool
}

var shapes = map[MessageType]shape{
	MsgVersion:             {min: 4, exact: true},   // protocol version
	MsgGuestResolution:     {min: 0, exact: false},  // N*8 screen entries
	MsgMonitorsConfig:      {min: 8, exact: false},  // num,flags + N*20
	MsgClipboardGrab:       {min: 0, exact: false},  // N*4 type tags
	MsgClipboardRequest:    {min: 0, exact: true},   // type tag carried in arg2
	MsgClipboardData:       {min: 0, exact: false},  // raw clipboard bytes
	MsgClipboardRelease:    {min: 0, exact: true},
	MsgFileTransferStart:   {min: 0, exact: false},
	MsgFileTransferStatus:  {min: 0, exact: false},  // agent→daemon: id,status payload; daemon→agent: arg1/arg2
	MsgFileTransferData:    {min: 0, exact: false},
	MsgFileTransferDisable: {min: 0, exact: true},
	MsgAudioVolumeSync:     {min: 4, exact: false},
	MsgClientDisconnected:  {min: 0, exact: true},
}

func ReadFrame(r io.Reader) (Frame, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Frame{}, fmt.Errorf("agentproto: read header: %w", err)
	}
	hdr := Header{
		Type: MessageType(NativeOrder.Uint32(raw[0:4])),
		Arg1: NativeOrder.Uint32(raw[4:8]),
		Arg2: NativeOrder.Uint32(raw[8:12]),
		Size: NativeOrder.Uint32(raw[12:16]),
	}

	if !hdr.Type.Valid() {
		io.CopyN(io.Discard, r, int64(hdr.Size)) //nolint:errcheck
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownType, hdr.Type)
	}

	payload := make([]byte, hdr.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("agentproto: read payload: %w", err)
	}

	sh := shapes[hdr.Type]
	if sh.exact && len(payload) != sh.min {
		return Frame{}, fmt.Errorf("%w: %s wants exactly %d bytes, got %d", ErrBadSize, hdr.Type, sh.min, len(payload))
	}
	if !sh.exact && len(payload) < sh.min {
		return Frame{}, fmt.Errorf("%w: %s wants at least %d bytes, got %d", ErrBadSize, hdr.Type, sh.min, len(payload))
	}

	return Frame{Header: hdr, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame) error {
	var raw [HeaderSize]byte
	NativeOrder.PutUint32(raw[0:4], uint32(f.Header.Type))
	NativeOrder.PutUint32(raw[4:8], f.Header.Arg1)
	NativeOrder.PutUint32(raw[8:12], f.Header.Arg2)
	NativeOrder.PutUint32(raw[12:16], uint32(len(f.Payload)))

	if _, err := w.Write(raw[:]); err != nil {
		return fmt.Errorf("agentproto: write header: %w", err)
	}
	if len(f.Payload) == 0 {
		return nil
	}
	if _, err := w.Write(f.Payload); err != nil {
		return fmt.Errorf("agentproto: write payload: %w", err)
	}
	return nil
}
