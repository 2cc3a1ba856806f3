// Package controller owns the device's current mode. A single tick loop
// consumes wake signals and mode requests, dispatches the current mode to its
// handler, commits the handler's next mode and broadcasts changes to the
// sensor units.
//
// Handlers form a dispatch table keyed by [mode.Mode]. Dispatch is total: a
// mode without a handler keeps the current mode and the previous display
// frame, and a panicking handler is logged rather than allowed to stop the
// loop. Only [mode.Shutdown] ends [Controller.Run].
//
// Background narration is supervised here: it runs while the current mode is
// passive and is stopped and joined before idle or active vision take over.
package controller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sightwear/sightwear/internal/arbiter"
	"github.com/sightwear/sightwear/internal/frame"
	"github.com/sightwear/sightwear/internal/intent"
	"github.com/sightwear/sightwear/internal/mode"
	"github.com/sightwear/sightwear/internal/observe"
	"github.com/sightwear/sightwear/internal/peripheral"
	"github.com/sightwear/sightwear/internal/services"
	"github.com/sightwear/sightwear/internal/speech"
	"github.com/sightwear/sightwear/internal/store"
	"github.com/sightwear/sightwear/internal/vision"
	"github.com/sightwear/sightwear/internal/wakeword"
	"github.com/sightwear/sightwear/pkg/audio"
	"github.com/sightwear/sightwear/pkg/phonetic"
	"github.com/sightwear/sightwear/pkg/provider/currency"
	"github.com/sightwear/sightwear/pkg/provider/describe"
	"github.com/sightwear/sightwear/pkg/provider/geo"
	"github.com/sightwear/sightwear/pkg/provider/llm"
	"github.com/sightwear/sightwear/pkg/provider/ocr"
)

// Speaker is the speech arbiter.
type Speaker interface {
	Speak(ctx context.Context, req arbiter.Request) (bool, error)
}

// Link is the sensor unit link.
type Link interface {
	Broadcast(m mode.Mode) int
	PromptDone() int
}

// Recorder captures one utterance for a recording purpose.
type Recorder interface {
	Capture(ctx context.Context, purpose string, timeout time.Duration) (audio.Clip, error)
	Forget(purpose string)
}

// Transcriber turns a clip spoken in language into English text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error)
}

// Resolver classifies a transcript.
type Resolver interface {
	Resolve(ctx context.Context, text string) intent.Intent
}

// Narrator runs background narration. At most one task may be live.
type Narrator interface {
	Start(ctx context.Context) bool
	Stop()
}

// Vision runs the vision pipeline once.
type Vision interface {
	Process(ctx context.Context, f *frame.Frame, opts vision.Options) (vision.Result, error)
}

// Guardian is the guardian backend link.
type Guardian interface {
	Messages() <-chan services.Message
	SendEmergency(ctx context.Context, a services.EmergencyAlert) error
	SendPayment(ctx context.Context, p services.Payment) error
	SendReply(ctx context.Context, content string) error
}

// Volume is the master playback gain.
type Volume interface {
	Master() float64
	SetMaster(g float64) float64
}

// Inbox exposes audio a sensor unit uploaded without being prompted.
type Inbox interface {
	Take(name string) (peripheral.Payload, bool)
}

// Deps are the controller's collaborators. Speaker is required; any other
// nil collaborator disables the features that need it, and the affected
// modes say so and return to idle.
type Deps struct {
	Speaker     Speaker
	Link        Link
	Recorder    Recorder
	Transcriber Transcriber
	Resolver    Resolver
	Narrator    Narrator
	Vision      Vision
	Inbox       Inbox
	Guardian    Guardian
	Volume      Volume
	Store       store.Store

	Languages *speech.Languages
	Matcher   *phonetic.Matcher

	OCR       ocr.Provider
	Currency  currency.Provider
	Geo       geo.Provider
	LLM       llm.Provider
	Describer describe.Provider
}

// Config tunes a [Controller]. Zero values take defaults.
type Config struct {
	// TickInterval paces the loop. Default: 50ms.
	TickInterval time.Duration

	// ListenTimeout bounds one capture. Default: 8s.
	ListenTimeout time.Duration

	// VoiceAttempts before apologising. Default: 3.
	VoiceAttempts int

	// ReadingAttempts without text before giving up. Default: 3.
	ReadingAttempts int

	// VolumeStep for volume_up and volume_down. Default: 0.1.
	VolumeStep float64

	DeviceID string

	// FallbackPosition is used when positioning fails.
	FallbackPosition geo.Position

	// NearbyRadius in metres. Default: 500.
	NearbyRadius int

	// MaxPlaces named by hotspots. Default: 5.
	MaxPlaces int

	// Chat is the base request for every chat turn.
	Chat llm.Request

	// ChatTurns bounds the chat history. Default: 10.
	ChatTurns int

	Metrics *observe.Metrics

	// Now overrides time.Now. Tests only.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 50 * time.Millisecond
	}
	if c.ListenTimeout <= 0 {
		c.ListenTimeout = 8 * time.Second
	}
	if c.VoiceAttempts <= 0 {
		c.VoiceAttempts = 3
	}
	if c.ReadingAttempts <= 0 {
		c.ReadingAttempts = 3
	}
	if c.VolumeStep <= 0 {
		c.VolumeStep = 0.1
	}
	if c.NearbyRadius <= 0 {
		c.NearbyRadius = 500
	}
	if c.MaxPlaces <= 0 {
		c.MaxPlaces = 5
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Tick is the input of one handler invocation.
type Tick struct {
	Mode     mode.Mode
	Frame    *frame.Frame
	Language string

	// Transcript is the voice command that selected Mode. It is only set on
	// the first tick after the command.
	Transcript string
}

// Handler runs one tick of a mode. It returns the frame to display and the
// mode to continue with.
type Handler func(ctx context.Context, t Tick) (display *frame.Frame, next mode.Mode)

// Controller is the device state machine. Mode, SetMode, Wake and InDialog
// are safe for concurrent use; everything else runs on the loop goroutine.
type Controller struct {
	dc       *DeviceContext
	deps     Deps
	cfg      Config
	wake     *wakeword.Signal
	handlers map[mode.Mode]Handler

	dialog atomic.Bool

	// Loop goroutine only.
	transcript    string
	frozen        *frame.Frame
	readingMisses int
	lastVisionSeq uint64
	conv          *llm.Conversation
}

// New returns a controller operating on dc.
func New(dc *DeviceContext, deps Deps, cfg Config) *Controller {
	cfg.defaults()
	if deps.Matcher == nil {
		deps.Matcher = phonetic.New()
	}
	c := &Controller{
		dc:   dc,
		deps: deps,
		cfg:  cfg,
		wake: dc.Signal(),
		conv: &llm.Conversation{MaxTurns: cfg.ChatTurns},
	}
	c.handlers = c.table()
	return c
}

// Context returns the shared device context.
func (c *Controller) Context() *DeviceContext { return c.dc }

// Mode returns the current mode.
func (c *Controller) Mode() mode.Mode { return c.dc.Mode() }

// SetMode asks for m on behalf of source. The request is committed on the
// next tick.
func (c *Controller) SetMode(m mode.Mode, source string) { c.dc.SetMode(m, source) }

// Wake starts a voice command interaction on the next tick.
func (c *Controller) Wake(source string) { c.dc.Wake(source) }

// InDialog reports whether the controller is prompting the wearer.
// Background narration holds back meanwhile.
func (c *Controller) InDialog() bool { return c.dialog.Load() }

// Run ticks until ctx is done or shutdown completes. Background narration
// is stopped before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	defer c.stopNarration()

	slog.Info("controller started", "mode", c.dc.Mode(), "language", c.dc.Language())
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		if c.Step(ctx) {
			slog.Info("controller shut down")
			return nil
		}
		select {
		case <-ctx.Done():
			slog.Info("controller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Step runs one tick and reports whether the device shut down.
func (c *Controller) Step(ctx context.Context) (done bool) {
	if source, ok := c.wake.Consume(); ok {
		c.voiceCommand(ctx, source)
	} else if c.deps.Inbox != nil {
		if p, ok := c.deps.Inbox.Take(peripheral.ContextVoice); ok {
			c.unsolicited(ctx, p)
		}
	}
	if r, ok := c.dc.takePending(); ok {
		c.commit(ctx, r.mode, r.source)
	}
	c.relayMessage(ctx)

	cur := c.dc.Mode()
	c.superviseNarration(ctx, cur)

	t := Tick{Mode: cur, Frame: c.dc.Frame(), Language: c.dc.Language(), Transcript: c.transcript}
	c.transcript = ""
	display, next := c.Dispatch(ctx, t)
	c.dc.setDisplay(display)

	if cur == mode.Shutdown {
		c.stopNarration()
		return true
	}
	if next != cur {
		c.commit(ctx, next, "handler")
	}
	return false
}

// Dispatch runs the handler for t.Mode. It never panics: unknown modes and
// failing handlers keep t.Mode and the previous display frame.
func (c *Controller) Dispatch(ctx context.Context, t Tick) (display *frame.Frame, next mode.Mode) {
	h, ok := c.handlers[t.Mode]
	if !ok {
		slog.Debug("no handler for mode", "mode", t.Mode)
		return c.hold(t), t.Mode
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("mode handler panicked", "mode", t.Mode, "panic", r)
			display, next = c.hold(t), t.Mode
		}
	}()
	display, next = h(ctx, t)
	if !next.IsValid() {
		slog.Warn("handler returned invalid mode", "mode", t.Mode, "next", next)
		next = t.Mode
	}
	return display, next
}

// hold is the display frame for a tick that did nothing.
func (c *Controller) hold(t Tick) *frame.Frame {
	if f := c.dc.Display(); f != nil {
		return f
	}
	return t.Frame
}

// commit makes m current and announces the change.
func (c *Controller) commit(ctx context.Context, m mode.Mode, source string) {
	old := c.dc.swap(m)
	if old == m {
		return
	}
	c.frozen = nil
	c.readingMisses = 0
	if old == mode.Chat {
		c.conv.Reset()
	}

	slog.Info("mode changed", "from", old, "to", m, "source", source)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordModeTransition(ctx, old.String(), m.String())
	}
	if c.deps.Link != nil {
		c.deps.Link.Broadcast(m)
	}
	if restorable(m) && c.deps.Store != nil {
		err := store.UpdatePreferences(ctx, c.deps.Store, func(p *store.Preferences) { p.LastMode = m.String() })
		if err != nil {
			slog.Warn("could not persist mode", "mode", m, "err", err)
		}
	}
}

// restorable modes are resumed after a restart.
func restorable(m mode.Mode) bool {
	return m == mode.Idle || m == mode.ActiveVision
}

func (c *Controller) superviseNarration(ctx context.Context, m mode.Mode) {
	if c.deps.Narrator == nil {
		return
	}
	if m.Passive() {
		c.deps.Narrator.Start(ctx)
		return
	}
	c.deps.Narrator.Stop()
}

func (c *Controller) stopNarration() {
	if c.deps.Narrator != nil {
		c.deps.Narrator.Stop()
	}
}

// announce speaks text urgently and waits for playback.
func (c *Controller) announce(ctx context.Context, text string) {
	req := arbiter.Request{Text: text, Language: c.dc.Language(), Priority: 1, Blocking: true}
	if _, err := c.deps.Speaker.Speak(ctx, req); err != nil {
		slog.Warn("announcement failed", "text", text, "err", err)
	}
}

func (c *Controller) unavailable(ctx context.Context, feature string) {
	c.announce(ctx, feature+" is not available.")
}

func (c *Controller) providerFailed(ctx context.Context, provider string, err error) {
	slog.Warn("provider failed", "provider", provider, "err", err)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordProviderError(ctx, provider, "error")
	}
}
