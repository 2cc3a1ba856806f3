// Package frame owns the device's single "latest camera frame" slot and the
// pollers that feed it.
//
// The [Cell] holds at most one frame. Writers overwrite it; readers always see
// the freshest frame or none. Nothing is queued, so a slow consumer simply
// misses frames.
package frame

import (
	"sync/atomic"
	"time"
)

// Frame is one immutable JPEG-encoded image. Callers must not modify JPEG.
type Frame struct {
	JPEG   []byte
	Width  int
	Height int

	// Seq increases by one per stored frame.
	Seq uint64

	// At is when the frame was captured.
	At time.Time
}

// Cell is a single-slot, overwrite-on-write frame buffer. The zero value is
// empty and ready to use. All methods are safe for concurrent use.
type Cell struct {
	latest atomic.Pointer[Frame]
	seq    atomic.Uint64
}

// Store publishes f as the latest frame and returns its sequence number. f.Seq
// is assigned by the cell; a zero f.At is replaced with the current time.
func (c *Cell) Store(f Frame) uint64 {
	f.Seq = c.seq.Add(1)
	if f.At.IsZero() {
		f.At = time.Now()
	}
	c.latest.Store(&f)
	return f.Seq
}

// Latest returns the newest frame. ok is false until the first Store.
func (c *Cell) Latest() (f *Frame, ok bool) {
	f = c.latest.Load()
	return f, f != nil
}

// LastUpdate returns the capture time of the newest frame, or the zero time.
func (c *Cell) LastUpdate() time.Time {
	if f := c.latest.Load(); f != nil {
		return f.At
	}
	return time.Time{}
}

// Clear empties the cell.
func (c *Cell) Clear() { c.latest.Store(nil) }
