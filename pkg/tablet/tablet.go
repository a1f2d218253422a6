// Package tablet wraps a uinput absolute-positioning touchpad device,
// the "tablet" the core event loop (pkg/bridge) opens and closes in
// lockstep with having an active, resolution-bearing session agent
// (spec.md §4.5's coupler).
package tablet

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bendahl/uinput"
)

// Buttons mirrors the bitmask carried in a wire.MouseState payload.
const (
	ButtonLeft   uint32 = 1 << 0
	ButtonMiddle uint32 = 1 << 1
	ButtonRight  uint32 = 1 << 2
)

// Device is an absolute-positioning uinput touchpad sized to the active
// agent's reported screen geometry. Unlike a relative mouse, an absolute
// device must be recreated (not resized) whenever the geometry changes —
// uinput has no in-place resize ioctl — so Open closes any existing
// device before creating the replacement.
type Device struct {
	path string
	fake bool
	log  *slog.Logger

	mu      sync.Mutex
	pad     uinput.TouchPad
	width   int32
	height  int32
	buttons uint32
}

// New returns a closed Device. Call Open once an active agent has
// reported a non-empty screen list. When fake is true (the -f flag),
// Open never issues real uinput ioctls — it tracks dimensions and
// button state against a no-op pad, matching the original_source
// daemon's "fake uinput" test mode.
func New(uinputPath string, fake bool, log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}
	return &Device{path: uinputPath, fake: fake, log: log}
}

// Open (re)creates the uinput device at the given dimensions. If a
// device is already open at the same dimensions, Open is a no-op.
func (d *Device) Open(width, height int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pad != nil && d.width == width && d.height == height {
		return nil
	}
	d.closeLocked()

	if d.fake {
		d.pad = fakePad{}
		d.width = width
		d.height = height
		d.buttons = 0
		d.log.Info("fake tablet device opened", "width", width, "height", height)
		return nil
	}

	pad, err := uinput.CreateTouchPad(d.path, []byte("vdbridged-tablet"), 0, width-1, 0, height-1)
	if err != nil {
		return fmt.Errorf("tablet: create uinput touchpad: %w", err)
	}

	d.pad = pad
	d.width = width
	d.height = height
	d.buttons = 0
	d.log.Info("tablet device opened", "width", width, "height", height)
	return nil
}

// Close destroys the uinput device, if open.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *Device) closeLocked() error {
	if d.pad == nil {
		return nil
	}
	err := d.pad.Close()
	d.pad = nil
	if err != nil {
		return fmt.Errorf("tablet: close uinput touchpad: %w", err)
	}
	return nil
}

// IsOpen reports whether a uinput device currently exists.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pad != nil
}

// SendState applies a MOUSE_STATE update: moves to (x, y) and presses or
// releases the left and right buttons if they changed since the last
// call. Changes to the middle button bit are not sent to the device.
func (d *Device) SendState(x, y int32, buttons uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pad == nil {
		return fmt.Errorf("tablet: device not open")
	}

	if err := d.pad.MoveTo(int32(clamp(x, 0, d.width-1)), int32(clamp(y, 0, d.height-1))); err != nil {
		return fmt.Errorf("tablet: move: %w", err)
	}

	changed := d.buttons ^ buttons
	if changed&ButtonLeft != 0 {
		if err := pressOrRelease(buttons&ButtonLeft != 0, d.pad.LeftPress, d.pad.LeftRelease); err != nil {
			return err
		}
	}
	if changed&ButtonRight != 0 {
		if err := pressOrRelease(buttons&ButtonRight != 0, d.pad.RightPress, d.pad.RightRelease); err != nil {
			return err
		}
	}
	d.buttons = buttons
	return nil
}

func pressOrRelease(down bool, press, release func() error) error {
	if down {
		if err := press(); err != nil {
			return fmt.Errorf("tablet: button press: %w", err)
		}
		return nil
	}
	if err := release(); err != nil {
		return fmt.Errorf("tablet: button release: %w", err)
	}
	return nil
}

// fakePad satisfies uinput.TouchPad without touching /dev/uinput, for -f
// and for tests that exercise the coupler without real hardware.
type fakePad struct{}

func (fakePad) MoveTo(x, y int32) error  { return nil }
func (fakePad) LeftClick() error         { return nil }
func (fakePad) RightClick() error        { return nil }
func (fakePad) LeftPress() error         { return nil }
func (fakePad) LeftRelease() error       { return nil }
func (fakePad) RightPress() error        { return nil }
func (fakePad) RightRelease() error      { return nil }
func (fakePad) FetchSyspath() (string, error) { return "", nil }
func (fakePad) Close() error             { return nil }

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
