package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMouseState(t *testing.T) {
	p := make([]byte, 16)
	p[0] = 10  // x
	p[4] = 20  // y
	p[8] = 1   // buttons
	p[12] = 2  // display id

	ms, err := DecodeMouseState(p)
	require.NoError(t, err)
	assert.Equal(t, MouseState{X: 10, Y: 20, Buttons: 1, DisplayID: 2}, ms)

	_, err = DecodeMouseState(p[:15])
	assert.Error(t, err)
}

func TestMonitorsConfigRoundTrip(t *testing.T) {
	mc := MonitorsConfig{
		Flags: 1,
		Monitors: []MonitorRect{
			{Height: 1080, Width: 1920, Depth: 32, X: 0, Y: 0},
			{Height: 1080, Width: 1920, Depth: 32, X: 1920, Y: 0},
		},
	}

	encoded := EncodeMonitorsConfig(mc)
	decoded, err := DecodeMonitorsConfig(encoded)
	require.NoError(t, err)
	assert.Equal(t, mc, decoded)
}

func TestDecodeMonitorsConfigRejectsMismatchedCount(t *testing.T) {
	p := make([]byte, 8+10) // num field claims 0 monitors but 10 trailing bytes follow
	_, err := DecodeMonitorsConfig(p)
	assert.Error(t, err)
}

func TestCapabilitiesRoundTrip(t *testing.T) {
	c := Capabilities{Request: false, Set: DaemonCapabilities()}
	encoded := EncodeCapabilities(c)
	decoded, err := DecodeCapabilities(encoded)
	require.NoError(t, err)
	assert.Equal(t, c.Request, decoded.Request)
	assert.True(t, decoded.Set.Has(CapAudioVolumeSync))
	assert.True(t, decoded.Set.Has(CapMouseState))
}

func TestClipboardGrabRoundTrip(t *testing.T) {
	g := ClipboardGrab{Types: []uint32{1, 2, 3}}
	encoded := EncodeClipboardGrab(g)
	decoded, err := DecodeClipboardGrab(encoded)
	require.NoError(t, err)
	assert.Equal(t, g, decoded)
}

func TestClipboardDataRoundTrip(t *testing.T) {
	data := EncodeClipboardData(5, []byte("hello"))
	tag, err := DecodeClipboardTypeTag(data)
	require.NoError(t, err)
	assert.EqualValues(t, 5, tag)
	assert.Equal(t, []byte("hello"), data[4:])
}

func TestDecodeFileTransferData(t *testing.T) {
	p := make([]byte, 12+5)
	p[0] = 1 // id
	p[4] = 5 // size low byte
	copy(p[12:], "abcde")

	ft, err := DecodeFileTransferData(p)
	require.NoError(t, err)
	assert.EqualValues(t, 1, ft.ID)
	assert.Equal(t, []byte("abcde"), ft.Data)

	_, err = DecodeFileTransferData(p[:12+3])
	assert.Error(t, err)
}

func TestAudioVolumeSyncRoundTrip(t *testing.T) {
	a := AudioVolumeSync{Mute: true, Volume: []uint16{100, 200}}
	encoded := EncodeAudioVolumeSync(a)
	decoded, err := DecodeAudioVolumeSync(encoded)
	require.NoError(t, err)
	assert.Equal(t, a, decoded)
}

func TestMaxClipboardDecode(t *testing.T) {
	p := []byte{0xff, 0xff, 0xff, 0xff} // -1, no limit
	mc, err := DecodeMaxClipboard(p)
	require.NoError(t, err)
	assert.EqualValues(t, -1, mc.Bytes)
}
