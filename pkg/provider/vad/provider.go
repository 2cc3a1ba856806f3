// Package vad defines the voice activity detection boundary used to decide
// when a spoken command has ended on the local microphone.
//
// An [Engine] hands out one [Session] per audio stream. A session keeps its
// own smoothing state, so concurrent streams never share one. Sessions are
// synchronous: Process returns immediately with the verdict for one frame.
package vad

import "errors"

// ErrFrameSize is returned when a frame does not match the configured size.
var ErrFrameSize = errors.New("vad: frame size mismatch")

// Config holds the parameters of a session. Thresholds use the engine's
// native scale; see the engine documentation for starting values.
type Config struct {
	// SampleRate is the PCM sample rate in Hz.
	SampleRate int

	// FrameSizeMs is the duration of one frame. Zero accepts any length.
	FrameSizeMs int

	// SpeechThreshold starts a speech segment when exceeded.
	SpeechThreshold float64

	// SilenceThreshold is the level below which a frame counts as silence.
	// Must be <= SpeechThreshold.
	SilenceThreshold float64

	// HangoverMs is how much continuous silence ends a segment.
	HangoverMs int
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return errors.New("vad: sample rate must be positive")
	case c.SilenceThreshold > c.SpeechThreshold:
		return errors.New("vad: silence threshold above speech threshold")
	case c.HangoverMs < 0 || c.FrameSizeMs < 0:
		return errors.New("vad: negative duration")
	}
	return nil
}

// EventType is the verdict for one frame.
type EventType int

const (
	// Silence means no speech segment is open.
	Silence EventType = iota
	// SpeechStart opens a segment.
	SpeechStart
	// SpeechContinue is a frame inside an open segment.
	SpeechContinue
	// SpeechEnd closes a segment after the hangover elapsed.
	SpeechEnd
)

func (t EventType) String() string {
	switch t {
	case Silence:
		return "silence"
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	default:
		return "unknown"
	}
}

// Event is the result of processing one frame.
type Event struct {
	Type EventType
	// Level is the engine's speech score for the frame.
	Level float64
}

// Session tracks one audio stream. It is not safe for concurrent use.
type Session interface {
	// Process classifies one frame of 16-bit PCM.
	Process(frame []int16) (Event, error)
	// Reset clears detection state without closing the session.
	Reset()
	// Close releases the session. Calling it twice is safe.
	Close() error
}

// Engine creates sessions. Implementations are safe for concurrent use.
type Engine interface {
	NewSession(cfg Config) (Session, error)
}
