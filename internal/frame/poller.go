package frame

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sightwear/sightwear/internal/observe"
	"github.com/sightwear/sightwear/internal/resilience"
)

// PollerConfig tunes a [Poller]. Zero values take defaults.
type PollerConfig struct {
	// Interval between reads. Default: 1/15s.
	Interval time.Duration

	// ReopenAfter consecutive read failures closes and re-opens the device.
	// Default: 5.
	ReopenAfter int

	// BackoffInitial and BackoffMax bound the wait between open attempts.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	Metrics *observe.Metrics
}

// Poller reads a capture device at a fixed pace and publishes every frame to
// a [Cell]. Read failures are transient: the poller never gives up while its
// context is alive.
type Poller struct {
	open Opener
	cell *Cell
	cfg  PollerConfig

	reopens atomic.Int64
}

// NewPoller returns a poller feeding cell from devices produced by open.
func NewPoller(open Opener, cell *Cell, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second / 15
	}
	if cfg.ReopenAfter <= 0 {
		cfg.ReopenAfter = 5
	}
	return &Poller{open: open, cell: cell, cfg: cfg}
}

// Reopens returns how many times the device was re-opened after failures.
func (p *Poller) Reopens() int64 { return p.reopens.Load() }

// Run polls until ctx is cancelled. It always returns nil.
func (p *Poller) Run(ctx context.Context) error {
	bo := resilience.NewBackoff(p.cfg.BackoffInitial, p.cfg.BackoffMax)
	var dev Device
	defer func() {
		if dev != nil {
			dev.Close()
		}
	}()

	failures := 0
	for ctx.Err() == nil {
		if dev == nil {
			d, err := p.open()
			if err != nil {
				slog.Warn("camera open failed", "err", err)
				if bo.Wait(ctx) != nil {
					return nil
				}
				continue
			}
			dev = d
			slog.Info("camera opened")
		}

		jpeg, w, h, err := dev.Read()
		if err != nil {
			failures++
			slog.Debug("camera read failed", "consecutive", failures, "err", err)
			if failures >= p.cfg.ReopenAfter {
				slog.Warn("camera unresponsive, reopening", "consecutive_failures", failures)
				dev.Close()
				dev = nil
				failures = 0
				p.reopens.Add(1)
				if p.cfg.Metrics != nil {
					p.cfg.Metrics.CameraReopens.Add(ctx, 1)
				}
				if bo.Wait(ctx) != nil {
					return nil
				}
				continue
			}
		} else {
			failures = 0
			bo.Reset()
			p.cell.Store(Frame{JPEG: jpeg, Width: w, Height: h, At: time.Now()})
		}

		if !sleep(ctx, p.cfg.Interval) {
			return nil
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
