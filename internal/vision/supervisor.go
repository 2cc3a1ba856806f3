package vision

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sightwear/sightwear/internal/frame"
	"github.com/sightwear/sightwear/internal/observe"
)

// NarrationConfig drives the background narration task.
type NarrationConfig struct {
	// Interval between invocations. Default: 1/15s.
	Interval time.Duration

	// Volume of background announcements. Default: 0.3.
	Volume float64

	// Language returns the current output language.
	Language func() string

	// Silenced reports whether announcements must be held back, e.g. while a
	// wake is pending.
	Silenced func() bool

	Metrics *observe.Metrics
}

// Supervisor owns the single background narration task. Start and Stop are
// safe for concurrent use; at most one task is live at any time.
type Supervisor struct {
	pipeline *Pipeline
	frames   *frame.Cell
	cfg      NarrationConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	volume atomic.Uint64 // math.Float64bits
}

// NewSupervisor returns a stopped supervisor.
func NewSupervisor(p *Pipeline, frames *frame.Cell, cfg NarrationConfig) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second / 15
	}
	if cfg.Volume <= 0 {
		cfg.Volume = 0.3
	}
	if cfg.Language == nil {
		cfg.Language = func() string { return "en" }
	}
	if cfg.Silenced == nil {
		cfg.Silenced = func() bool { return false }
	}
	s := &Supervisor{pipeline: p, frames: frames, cfg: cfg}
	s.SetVolume(cfg.Volume)
	return s
}

// SetVolume changes the volume of background announcements. It applies from
// the next invocation on.
func (s *Supervisor) SetVolume(v float64) {
	if v <= 0 || v > 1 {
		return
	}
	s.volume.Store(math.Float64bits(v))
}

// Start launches the narration task unless one is already running. The task
// ends when ctx is done or [Supervisor.Stop] is called.
func (s *Supervisor) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.VisionTasks.Add(ctx, 1)
	}
	go func() {
		defer close(done)
		s.loop(ctx)
	}()
	slog.Debug("background narration started")
	return true
}

// Stop cancels the running task and waits for it to exit. It is a no-op when
// nothing is running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.VisionTasks.Add(context.Background(), -1)
	}
	slog.Debug("background narration stopped")
}

// Running reports whether a task is live.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *Supervisor) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		f, ok := s.frames.Latest()
		if !ok || f.Seq == lastSeq {
			continue
		}
		lastSeq = f.Seq
		_, err := s.pipeline.Process(ctx, f, Options{
			Language: s.cfg.Language(),
			Volume:   math.Float64frombits(s.volume.Load()),
			Silent:   s.cfg.Silenced(),
			Path:     "passive",
		})
		if err != nil && ctx.Err() == nil {
			slog.Warn("background narration failed", "err", err)
		}
	}
}
