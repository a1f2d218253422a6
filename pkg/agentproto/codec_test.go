package agentproto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		f    Frame
	}{
		{
			name: "version",
			f: Frame{
				Header:  Header{Type: MsgVersion},
				Payload: EncodeVersion(Version{Protocol: 1}),
			},
		},
		{
			name: "guest resolution",
			f: Frame{
				Header:  Header{Type: MsgGuestResolution, Arg1: 1920, Arg2: 1080},
				Payload: make([]byte, screenSize*2),
			},
		},
		{
			name: "client disconnected, empty payload",
			f: Frame{
				Header:  Header{Type: MsgClientDisconnected},
				Payload: []byte{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tt.f))

			got, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.f.Header.Type, got.Header.Type)
			assert.Equal(t, tt.f.Header.Arg1, got.Header.Arg1)
			assert.Equal(t, tt.f.Header.Arg2, got.Header.Arg2)
			assert.Equal(t, tt.f.Payload, got.Payload)
		})
	}
}

func TestReadFrameRejectsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Frame{Header: Header{Type: maxMessageType}}))

	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestReadFrameRejectsBadSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Frame{Header: Header{Type: MsgVersion}, Payload: []byte{1, 2}}))

	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrBadSize)
}

func TestGuestResolutionLegacyZero(t *testing.T) {
	g := GuestResolution{Width: 0, Height: 0}
	assert.True(t, g.IsLegacy())

	g2 := GuestResolution{Width: 1024, Height: 768}
	assert.False(t, g2.IsLegacy())
}

func TestDecodeGuestResolutionRejectsMisalignedPayload(t *testing.T) {
	_, err := DecodeGuestResolution(Header{}, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestClipboardGrabTypesRoundTrip(t *testing.T) {
	types := []uint32{1, 2, 3}
	encoded := EncodeClipboardGrabTypes(types)
	decoded, err := DecodeClipboardGrabTypes(encoded)
	require.NoError(t, err)
	assert.Equal(t, types, decoded)
}

func TestAudioVolumeSyncRoundTrip(t *testing.T) {
	a := AudioVolumeSync{Mute: true, Volume: []uint16{1, 2, 3}}
	encoded := EncodeAudioVolumeSync(a)
	decoded, err := DecodeAudioVolumeSync(encoded)
	require.NoError(t, err)
	assert.Equal(t, a, decoded)
}
