// Package mock provides test doubles for the vad package interfaces.
//
// Session replays Events in order and repeats the last one, so a test can
// script a whole speech segment:
//
//	sess := &mock.Session{Events: []vad.EventType{vad.SpeechStart, vad.SpeechEnd}}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/sightwear/sightwear/pkg/provider/vad"
)

var (
	_ vad.Engine  = (*Engine)(nil)
	_ vad.Session = (*Session)(nil)
)

// Engine returns Session (or a fresh silent one) from NewSession.
type Engine struct {
	mu sync.Mutex

	Session *Session
	Err     error

	Configs []vad.Config
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configs = append(e.Configs, cfg)
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a scripted vad.Session.
type Session struct {
	mu sync.Mutex

	Events []vad.EventType
	Err    error

	Frames     int
	ResetCount int
	Closed     bool
}

// Process implements vad.Session.
func (s *Session) Process(_ []int16) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames++
	if s.Err != nil {
		return vad.Event{}, s.Err
	}
	if len(s.Events) == 0 {
		return vad.Event{Type: vad.Silence}, nil
	}
	i := s.Frames - 1
	if i >= len(s.Events) {
		i = len(s.Events) - 1
	}
	return vad.Event{Type: s.Events[i]}, nil
}

// Reset implements vad.Session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
}

// Close implements vad.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
