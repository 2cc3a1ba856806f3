package controller

import (
	"log/slog"
	"sync"

	"github.com/sightwear/sightwear/internal/frame"
	"github.com/sightwear/sightwear/internal/mode"
	"github.com/sightwear/sightwear/internal/wakeword"
)

// DeviceContext is the device state shared between the controller and the
// rest of the runtime. Only the controller commits modes; sensor units and
// the keyboard file requests through SetMode and Wake, which the controller
// picks up on its next tick. Readers may see a mode one tick stale.
//
// DeviceContext implements the handler interfaces of the peripheral link and
// the keyboard reader.
type DeviceContext struct {
	frames *frame.Cell
	wake   *wakeword.Signal

	mu       sync.RWMutex
	mode     mode.Mode
	language string
	display  *frame.Frame
	pending  *request
}

type request struct {
	mode   mode.Mode
	source string
}

// NewDeviceContext returns a context starting in initial with language
// selected. A nil frames never yields a frame; a nil wake allocates one.
func NewDeviceContext(frames *frame.Cell, wake *wakeword.Signal, initial mode.Mode, language string) *DeviceContext {
	if frames == nil {
		frames = &frame.Cell{}
	}
	if wake == nil {
		wake = &wakeword.Signal{}
	}
	if !initial.IsValid() {
		initial = mode.Idle
	}
	return &DeviceContext{frames: frames, wake: wake, mode: initial, language: language}
}

// Mode returns the current mode.
func (d *DeviceContext) Mode() mode.Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// SetMode asks for m on behalf of source. A later request replaces an
// uncommitted one.
func (d *DeviceContext) SetMode(m mode.Mode, source string) {
	if !m.IsValid() {
		slog.Warn("ignoring invalid mode request", "mode", m, "source", source)
		return
	}
	d.mu.Lock()
	d.pending = &request{mode: m, source: source}
	d.mu.Unlock()
}

// Wake asks for a voice command interaction.
func (d *DeviceContext) Wake(source string) {
	if !d.wake.Raise(source) {
		slog.Debug("wake already pending", "source", source)
	}
}

// WakePending reports whether a wake is waiting to be served.
func (d *DeviceContext) WakePending() bool { return d.wake.Pending() }

// Signal returns the wake bit shared with the wake word detector.
func (d *DeviceContext) Signal() *wakeword.Signal { return d.wake }

// Language returns the selected output language code.
func (d *DeviceContext) Language() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.language
}

// SetLanguage selects the output language.
func (d *DeviceContext) SetLanguage(code string) {
	d.mu.Lock()
	d.language = code
	d.mu.Unlock()
}

// Frame returns the newest camera frame, or nil before the first one.
func (d *DeviceContext) Frame() *frame.Frame {
	f, _ := d.frames.Latest()
	return f
}

// Frames returns the underlying frame slot.
func (d *DeviceContext) Frames() *frame.Cell { return d.frames }

// Display returns the frame the last handler chose to show.
func (d *DeviceContext) Display() *frame.Frame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.display
}

func (d *DeviceContext) setDisplay(f *frame.Frame) {
	d.mu.Lock()
	d.display = f
	d.mu.Unlock()
}

// swap sets the current mode and returns the previous one.
func (d *DeviceContext) swap(m mode.Mode) mode.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	old := d.mode
	d.mode = m
	return old
}

func (d *DeviceContext) takePending() (request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return request{}, false
	}
	r := *d.pending
	d.pending = nil
	return r, true
}
