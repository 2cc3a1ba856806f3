// Package wakeword spots the wake phrase in streamed microphone audio.
//
// A receiver appends audio to a bounded [Ring]. A [Detector] independently
// classifies the most recent window at a fixed stride and fires at most once
// per cooldown. Fired wakes land in a [Signal]: a single pending bit that the
// controller consumes.
package wakeword

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// State is the detector's position in its trigger cycle.
type State int

const (
	// StateIdle means not enough audio has arrived for one window.
	StateIdle State = iota
	StateListening
	StateTriggered
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateTriggered:
		return "triggered"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Classifier scores one window of mono samples in [-1, 1]. It returns the
// probability that the window contains the wake phrase.
type Classifier interface {
	Classify(window []float32) (float64, error)
}

// ClassifierFunc adapts a function to [Classifier].
type ClassifierFunc func(window []float32) (float64, error)

// Classify implements [Classifier].
func (f ClassifierFunc) Classify(window []float32) (float64, error) { return f(window) }

// Config tunes a [Detector]. Zero values take defaults.
type Config struct {
	// SampleRate of the buffered audio. Default: 16000.
	SampleRate int

	// Window of audio classified per step. Default: 2s.
	Window time.Duration

	// Stride between steps. Default: 500ms.
	Stride time.Duration

	// Threshold the wake probability must exceed. Default: 0.95.
	Threshold float64

	// Cooldown suppresses repeated triggers. Default: 3s.
	Cooldown time.Duration

	// Now overrides time.Now. Tests only.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Window <= 0 {
		c.Window = 2 * time.Second
	}
	if c.Stride <= 0 {
		c.Stride = 500 * time.Millisecond
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.95
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 3 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Samples converts d into a sample count at rate.
func Samples(d time.Duration, rate int) int {
	return int(d.Seconds() * float64(rate))
}

// Detector runs the windowed classifier over a ring.
type Detector struct {
	cfg    Config
	ring   *Ring
	clf    Classifier
	window int

	mu          sync.Mutex
	state       State
	lastTrigger time.Time

	threshold atomic.Uint64 // math.Float64bits
}

// NewDetector returns a detector reading ring and scoring with clf.
func NewDetector(ring *Ring, clf Classifier, cfg Config) *Detector {
	cfg.defaults()
	d := &Detector{cfg: cfg, ring: ring, clf: clf, window: Samples(cfg.Window, cfg.SampleRate)}
	d.SetThreshold(cfg.Threshold)
	return d
}

// SetThreshold changes the trigger threshold.
func (d *Detector) SetThreshold(t float64) {
	d.threshold.Store(math.Float64bits(t))
}

func (d *Detector) thresholdValue() float64 {
	return math.Float64frombits(d.threshold.Load())
}

// State returns the current cycle position.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateCooldown && d.cfg.Now().Sub(d.lastTrigger) >= d.cfg.Cooldown {
		return StateListening
	}
	return d.state
}

// Step classifies the latest window once. fired is true when this step
// raised a wake.
func (d *Detector) Step() (fired bool, err error) {
	win, ok := d.ring.Latest(d.window)
	if !ok {
		d.setState(StateIdle)
		return false, nil
	}

	p, err := d.clf.Classify(win)
	if err != nil {
		return false, fmt.Errorf("wakeword: classify: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.cfg.Now()
	inCooldown := !d.lastTrigger.IsZero() && now.Sub(d.lastTrigger) < d.cfg.Cooldown

	switch {
	case p > d.thresholdValue() && !inCooldown:
		d.state = StateTriggered
		d.lastTrigger = now
		slog.Info("wake word detected", "confidence", p)
		return true, nil
	case inCooldown:
		d.state = StateCooldown
	default:
		d.state = StateListening
	}
	return false, nil
}

func (d *Detector) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run calls [Detector.Step] every stride until ctx is done, invoking onWake
// for every trigger. Classifier errors are logged and skipped.
func (d *Detector) Run(ctx context.Context, onWake func()) error {
	t := time.NewTicker(d.cfg.Stride)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		fired, err := d.Step()
		if err != nil {
			slog.Warn("wake word step failed", "err", err)
			continue
		}
		if fired && onWake != nil {
			onWake()
		}
	}
}

// Signal is an edge-triggered wake bit with clear-on-read semantics. At most
// one wake is pending at a time. The zero value is ready to use.
type Signal struct {
	mu      sync.Mutex
	pending bool
	source  string
}

// Raise sets the bit. It returns false if a wake was already pending.
func (s *Signal) Raise(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return false
	}
	s.pending, s.source = true, source
	return true
}

// Pending reports whether a wake is waiting without clearing it.
func (s *Signal) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Consume clears the bit and reports whether it was set, along with the
// source that raised it.
func (s *Signal) Consume() (source string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return "", false
	}
	s.pending = false
	return s.source, true
}
