// Package energy implements vad.Engine with a root mean square level gate.
// It needs no model and suits a close-talking wearable microphone.
//
// Levels are normalised RMS in [0, 1]; 0.015 for speech and 0.01 for
// silence with a 600ms hangover work for most headsets.
package energy

import (
	"fmt"

	"github.com/sightwear/sightwear/pkg/audio"
	"github.com/sightwear/sightwear/pkg/provider/vad"
)

var _ vad.Engine = Engine{}

// Engine is stateless; every session is independent.
type Engine struct{}

// NewSession implements vad.Engine.
func (Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{cfg: cfg}, nil
}

type session struct {
	cfg       vad.Config
	speaking  bool
	silenceMs float64
	closed    bool
}

func (s *session) Process(frame []int16) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, fmt.Errorf("energy: session closed")
	}
	if s.cfg.FrameSizeMs > 0 && len(frame) != s.cfg.SampleRate*s.cfg.FrameSizeMs/1000 {
		return vad.Event{}, fmt.Errorf("%w: got %d samples", vad.ErrFrameSize, len(frame))
	}
	level := audio.RMS(frame)
	frameMs := float64(len(frame)) * 1000 / float64(s.cfg.SampleRate)

	if !s.speaking {
		if level > s.cfg.SpeechThreshold {
			s.speaking, s.silenceMs = true, 0
			return vad.Event{Type: vad.SpeechStart, Level: level}, nil
		}
		return vad.Event{Type: vad.Silence, Level: level}, nil
	}
	if level >= s.cfg.SilenceThreshold {
		s.silenceMs = 0
		return vad.Event{Type: vad.SpeechContinue, Level: level}, nil
	}
	s.silenceMs += frameMs
	if s.silenceMs >= float64(s.cfg.HangoverMs) {
		s.speaking, s.silenceMs = false, 0
		return vad.Event{Type: vad.SpeechEnd, Level: level}, nil
	}
	return vad.Event{Type: vad.SpeechContinue, Level: level}, nil
}

func (s *session) Reset() { s.speaking, s.silenceMs = false, 0 }

func (s *session) Close() error {
	s.closed = true
	return nil
}
