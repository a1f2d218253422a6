package tablet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	assert.EqualValues(t, 0, clamp(-5, 0, 100))
	assert.EqualValues(t, 100, clamp(200, 0, 100))
	assert.EqualValues(t, 50, clamp(50, 0, 100))
}

func TestNewDeviceStartsClosed(t *testing.T) {
	d := New("/dev/uinput", false, nil)
	assert.False(t, d.IsOpen())
}

func TestSendStateBeforeOpenErrors(t *testing.T) {
	d := New("/dev/uinput", false, nil)
	err := d.SendState(0, 0, 0)
	assert.Error(t, err)
}

func TestFakeDeviceOpenAndSendStateNeverTouchUinput(t *testing.T) {
	d := New("/dev/uinput", true, nil)
	require.NoError(t, d.Open(1024, 768))
	assert.True(t, d.IsOpen())

	require.NoError(t, d.SendState(100, 200, ButtonLeft))
	require.NoError(t, d.Close())
	assert.False(t, d.IsOpen())
}

func TestFakeDeviceReopenSameDimensionsIsNoop(t *testing.T) {
	d := New("/dev/uinput", true, nil)
	require.NoError(t, d.Open(800, 600))
	require.NoError(t, d.Open(800, 600))
	assert.True(t, d.IsOpen())
}
