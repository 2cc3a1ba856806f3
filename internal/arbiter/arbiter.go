// Package arbiter serialises speech output across the whole device.
//
// At most one utterance plays at a time. Routine requests (priority 0) are
// dropped while anything is playing and are additionally rate limited; urgent
// requests (priority >= 1) wait for the output device instead. Non-blocking
// requests are handed to a single audio worker that keeps exclusive access
// until playback ends.
//
// Typical usage:
//
//	arb := arbiter.New(speaker, arbiter.WithMinInterval(1500*time.Millisecond))
//	defer arb.Close()
//	arb.Speak(ctx, arbiter.Request{Text: "Hello, how may I help you?", Priority: 1, Blocking: true})
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/sightwear/sightwear/internal/observe"
)

// ErrClosed is returned by [Arbiter.Speak] after [Arbiter.Close].
var ErrClosed = errors.New("arbiter: closed")

// DefaultMinInterval is the minimum gap between routine utterances.
const DefaultMinInterval = 1500 * time.Millisecond

// Drop reasons recorded on the speech dropped counter.
const (
	ReasonBusy        = "busy"
	ReasonRateLimited = "rate_limited"
	ReasonClosed      = "closed"
)

// Speaker synthesises text and plays it to completion. Implementations route
// by language; the arbiter does not care how.
type Speaker interface {
	Speak(ctx context.Context, text, language string, volume float64) error
}

// SpeakerFunc adapts a function to [Speaker].
type SpeakerFunc func(ctx context.Context, text, language string, volume float64) error

// Speak implements [Speaker].
func (f SpeakerFunc) Speak(ctx context.Context, text, language string, volume float64) error {
	return f(ctx, text, language, volume)
}

// Request is one utterance.
type Request struct {
	Text     string
	Language string

	// Priority 0 is routine narration; anything higher is urgent.
	Priority int

	// Volume in (0, 1]. Zero means full volume.
	Volume float64

	// Blocking makes Speak return only after playback completes.
	Blocking bool
}

// Option configures an [Arbiter].
type Option func(*Arbiter)

// WithMinInterval sets the routine speech rate limit. Zero disables it.
func WithMinInterval(d time.Duration) Option {
	return func(a *Arbiter) { a.minInterval = d }
}

// WithMetrics records played, dropped and latency instruments on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Arbiter) { a.metrics = m }
}

// WithClock overrides time.Now. Tests only.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) { a.now = now }
}

type job struct {
	req Request
}

// Arbiter is the device-wide speech mutex. All methods are safe for
// concurrent use.
type Arbiter struct {
	speaker Speaker
	metrics *observe.Metrics
	now     func() time.Time

	// sem has capacity one; holding its slot means owning the output device.
	sem  chan struct{}
	jobs chan job

	mu          sync.Mutex
	minInterval time.Duration
	lastPlayed  time.Time

	playing atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New starts an arbiter in front of speaker.
func New(speaker Speaker, opts ...Option) *Arbiter {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Arbiter{
		speaker:     speaker,
		now:         time.Now,
		sem:         make(chan struct{}, 1),
		jobs:        make(chan job, 1),
		minInterval: DefaultMinInterval,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, o := range opts {
		o(a)
	}
	a.wg.Add(1)
	go a.worker()
	return a
}

// Speak submits req. accepted reports whether the utterance was (or will be)
// played; a dropped routine request returns false with a nil error.
//
// Urgent requests block until the device is free, ctx is done, or the arbiter
// is closed. Synthesis and playback errors of a blocking request are returned;
// those of a non-blocking request are logged by the worker.
func (a *Arbiter) Speak(ctx context.Context, req Request) (accepted bool, err error) {
	if a.ctx.Err() != nil {
		a.drop(ctx, ReasonClosed)
		return false, ErrClosed
	}
	if req.Volume <= 0 {
		req.Volume = 1
	}

	if req.Priority <= 0 {
		select {
		case a.sem <- struct{}{}:
		default:
			a.drop(ctx, ReasonBusy)
			return false, nil
		}
		if a.rateLimited() {
			a.release()
			a.drop(ctx, ReasonRateLimited)
			return false, nil
		}
	} else {
		select {
		case a.sem <- struct{}{}:
		case <-ctx.Done():
			return false, ctx.Err()
		case <-a.ctx.Done():
			a.drop(ctx, ReasonClosed)
			return false, ErrClosed
		}
		if a.ctx.Err() != nil {
			a.release()
			a.drop(ctx, ReasonClosed)
			return false, ErrClosed
		}
	}

	if req.Blocking {
		defer a.release()
		return true, a.play(ctx, req)
	}

	// Only the slot holder sends, and the worker drains before releasing,
	// so this send never blocks.
	select {
	case a.jobs <- job{req: req}:
		return true, nil
	case <-a.ctx.Done():
		a.release()
		a.drop(ctx, ReasonClosed)
		return false, ErrClosed
	}
}

// Say is shorthand for a routine non-blocking request.
func (a *Arbiter) Say(ctx context.Context, text, language string) {
	_, _ = a.Speak(ctx, Request{Text: text, Language: language})
}

// Announce is shorthand for an urgent blocking request. Errors are logged.
func (a *Arbiter) Announce(ctx context.Context, text, language string) {
	if _, err := a.Speak(ctx, Request{Text: text, Language: language, Priority: 1, Blocking: true}); err != nil {
		slog.Warn("announcement failed", "text", text, "err", err)
	}
}

// Busy reports whether an utterance is playing right now.
func (a *Arbiter) Busy() bool { return a.playing.Load() }

// SetMinInterval changes the routine speech rate limit.
func (a *Arbiter) SetMinInterval(d time.Duration) {
	a.mu.Lock()
	a.minInterval = d
	a.mu.Unlock()
}

// LastPlayed returns when the last successful playback finished. The zero
// time means nothing has played yet.
func (a *Arbiter) LastPlayed() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPlayed
}

// Close stops the worker after any in-flight playback is cancelled and
// wakes every waiting urgent request with [ErrClosed]. Close is idempotent.
func (a *Arbiter) Close() error {
	a.once.Do(func() {
		a.cancel()
		a.wg.Wait()
	})
	return nil
}

func (a *Arbiter) worker() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case j := <-a.jobs:
			func() {
				defer a.release()
				if err := a.play(a.ctx, j.req); err != nil {
					slog.Warn("speech playback failed", "text", j.req.Text, "err", err)
				}
			}()
		}
	}
}

// play runs the speaker while the caller holds the slot.
// A panicking speaker is reported as an error so the slot is still released.
func (a *Arbiter) play(ctx context.Context, req Request) (err error) {
	a.playing.Store(true)
	defer a.playing.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("arbiter: speaker panicked: %v", r)
			if a.metrics != nil {
				a.metrics.RecordProviderError(ctx, "speech", "panic")
			}
		}
	}()

	start := a.now()
	if err := a.speaker.Speak(ctx, req.Text, req.Language, req.Volume); err != nil {
		if a.metrics != nil {
			a.metrics.RecordProviderError(ctx, "speech", "playback")
		}
		return err
	}

	end := a.now()
	a.mu.Lock()
	a.lastPlayed = end
	a.mu.Unlock()

	if a.metrics != nil {
		attrs := metric.WithAttributes(observe.Attr("priority", strconv.Itoa(req.Priority)))
		a.metrics.SpeechPlayed.Add(ctx, 1, attrs)
		a.metrics.SpeechDuration.Record(ctx, end.Sub(start).Seconds(), attrs)
	}
	return nil
}

func (a *Arbiter) rateLimited() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.minInterval <= 0 || a.lastPlayed.IsZero() {
		return false
	}
	return a.now().Sub(a.lastPlayed) < a.minInterval
}

func (a *Arbiter) release() { <-a.sem }

func (a *Arbiter) drop(ctx context.Context, reason string) {
	slog.Debug("speech dropped", "reason", reason)
	if a.metrics != nil {
		a.metrics.RecordSpeechDropped(ctx, reason)
	}
}
