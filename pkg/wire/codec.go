package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Errors returned by ReadFrame. All three are "wire-format violation"
// outcomes per spec.md §7: the caller logs once and drops the frame, the
// host channel itself stays open.
var (
	ErrBadProtocolVersion = errors.New("wire: unexpected protocol version")
	ErrUnknownType        = errors.New("wire: unknown message type")
	ErrBadSize            = errors.New("wire: payload size violates shape")
)

// Frame is a validated host-channel message. Payload fields remain in
// wire (little-endian) order; use the Decode/Encode helpers in messages.go
// to interpret them — the idiomatic Go take on the source protocol's
// "convert in place after validation" step, done per-field at the point of
// use via encoding/binary rather than by reversing bytes in a shared buffer.
type Frame struct {
	Header    Header
	Selection Selection // meaningful only for clipboard-family types
	Payload   []byte    // selection prefix already stripped; still little-endian
}

// ReadFrame reads and validates one frame from r. caps is the currently
// negotiated capability set (nil is treated as "no capabilities announced
// yet", i.e. no selection prefix).
func ReadFrame(r io.Reader, caps *CapabilitySet) (Frame, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Frame{}, fmt.Errorf("wire: read header: %w", err)
	}
	hdr := Header{
		Protocol: binary.LittleEndian.Uint32(raw[0:4]),
		Type:     MessageType(binary.LittleEndian.Uint32(raw[4:8])),
		Opaque:   binary.LittleEndian.Uint32(raw[8:12]),
		Size:     binary.LittleEndian.Uint32(raw[12:16]),
	}

	if hdr.Protocol != ProtocolVersion {
		// Still have to drain the payload so the stream stays framed.
		io.CopyN(io.Discard, r, int64(hdr.Size)) //nolint:errcheck
		return Frame{}, fmt.Errorf("%w: got %d want %d", ErrBadProtocolVersion, hdr.Protocol, ProtocolVersion)
	}
	if !hdr.Type.Valid() {
		io.CopyN(io.Discard, r, int64(hdr.Size)) //nolint:errcheck
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownType, hdr.Type)
	}

	payload := make([]byte, hdr.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("wire: read payload: %w", err)
	}

	sh := shapes[hdr.Type]
	min := sh.min
	selectionPrefixed := hasSelectionPrefix(hdr.Type) && caps.Has(CapClipboardSelection)
	if selectionPrefixed {
		min += 4
	}
	if sh.exact && len(payload) != min {
		return Frame{}, fmt.Errorf("%w: %s wants exactly %d bytes, got %d", ErrBadSize, hdr.Type, min, len(payload))
	}
	if !sh.exact && len(payload) < min {
		return Frame{}, fmt.Errorf("%w: %s wants at least %d bytes, got %d", ErrBadSize, hdr.Type, min, len(payload))
	}

	sel := SelectionClipboard
	if selectionPrefixed {
		sel = Selection(payload[0])
		payload = payload[4:]
	}

	return Frame{Header: hdr, Selection: sel, Payload: payload}, nil
}

// WriteFrame encodes and writes f to w, re-injecting the selection prefix
// when negotiated. f.Payload must already hold little-endian-encoded fields
// (see the Encode* helpers in messages.go) — WriteFrame does not touch field
// byte order itself, only framing.
func WriteFrame(w io.Writer, f Frame, caps *CapabilitySet) error {
	payload := f.Payload

	if hasSelectionPrefix(f.Header.Type) && caps.Has(CapClipboardSelection) {
		prefixed := make([]byte, 4+len(payload))
		prefixed[0] = byte(f.Selection)
		copy(prefixed[4:], payload)
		payload = prefixed
	}

	var raw [HeaderSize]byte
	binary.LittleEndian.PutUint32(raw[0:4], f.Header.Protocol)
	binary.LittleEndian.PutUint32(raw[4:8], uint32(f.Header.Type))
	binary.LittleEndian.PutUint32(raw[8:12], f.Header.Opaque)
	binary.LittleEndian.PutUint32(raw[12:16], uint32(len(payload)))

	if _, err := w.Write(raw[:]); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}
