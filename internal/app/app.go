// Package app wires all sightwear subsystems into a running device.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the sensor loops and the mode controller, and
// Shutdown tears everything down in order.
//
// For testing, inject fakes via functional options (WithStore, WithPlayer,
// WithCamera, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/sightwear/sightwear/internal/arbiter"
	"github.com/sightwear/sightwear/internal/capture"
	"github.com/sightwear/sightwear/internal/config"
	"github.com/sightwear/sightwear/internal/controller"
	"github.com/sightwear/sightwear/internal/frame"
	"github.com/sightwear/sightwear/internal/health"
	"github.com/sightwear/sightwear/internal/intent"
	"github.com/sightwear/sightwear/internal/keyboard"
	"github.com/sightwear/sightwear/internal/mode"
	"github.com/sightwear/sightwear/internal/observe"
	"github.com/sightwear/sightwear/internal/peripheral"
	"github.com/sightwear/sightwear/internal/resilience"
	"github.com/sightwear/sightwear/internal/services"
	"github.com/sightwear/sightwear/internal/speech"
	"github.com/sightwear/sightwear/internal/store"
	"github.com/sightwear/sightwear/internal/vision"
	"github.com/sightwear/sightwear/internal/vision/onnx"
	"github.com/sightwear/sightwear/internal/wakeword"
	"github.com/sightwear/sightwear/pkg/audio"
	"github.com/sightwear/sightwear/pkg/phonetic"
	"github.com/sightwear/sightwear/pkg/provider/currency"
	"github.com/sightwear/sightwear/pkg/provider/describe"
	"github.com/sightwear/sightwear/pkg/provider/embeddings"
	"github.com/sightwear/sightwear/pkg/provider/geo"
	"github.com/sightwear/sightwear/pkg/provider/llm"
	"github.com/sightwear/sightwear/pkg/provider/ocr"
	"github.com/sightwear/sightwear/pkg/provider/stt"
	"github.com/sightwear/sightwear/pkg/provider/translate"
	"github.com/sightwear/sightwear/pkg/provider/tts"
	"github.com/sightwear/sightwear/pkg/provider/vad"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT         stt.Provider
	STTFallback stt.Provider
	TTS         tts.Provider

	RegionalSTT stt.Provider
	RegionalTTS tts.Provider
	Translate   translate.Provider

	Embeddings embeddings.Provider
	LLM        llm.Provider
	Describe   describe.Provider
	OCR        ocr.Provider
	Currency   currency.Provider
	Geo        geo.Provider
	VAD        vad.Engine
}

// Player plays synthesised speech and owns the master volume.
type Player interface {
	speech.Player
	controller.Volume
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	store       store.Store
	pool        *pgxpool.Pool
	deviceID    string
	langs       *speech.Languages
	frames      *frame.Cell
	dc          *controller.DeviceContext
	player      Player
	arbiter     *arbiter.Arbiter
	link        *peripheral.Server
	recorder    *capture.Auto
	mic         capture.Source
	trans       *speech.Transcriber
	resolver    *intent.Resolver
	intentIndex *intent.Pending
	pipeline    *vision.Pipeline
	narrator    *vision.Supervisor
	guardian    *services.Guardian
	wake        *wakeword.Server
	ctl         *controller.Controller

	camera    frame.Opener
	poller    *frame.Poller
	detector  vision.Detector
	depth     vision.DepthEstimator
	wakeClf   wakeword.Classifier
	keys      io.Reader
	keyReader *keyboard.Reader

	metricsHandler http.Handler
	ops            *http.Server
	opsLn          net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of opening one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithPlayer injects the audio output instead of opening the sound card.
func WithPlayer(p Player) Option {
	return func(a *App) { a.player = p }
}

// WithCamera injects the frame source used when the camera is enabled.
func WithCamera(open frame.Opener) Option {
	return func(a *App) { a.camera = open }
}

// WithMicrophone injects the local microphone source.
func WithMicrophone(src capture.Source) Option {
	return func(a *App) { a.mic = src }
}

// WithVisionModels injects the object detector and depth estimator instead
// of loading the ONNX models.
func WithVisionModels(det vision.Detector, depth vision.DepthEstimator) Option {
	return func(a *App) { a.detector, a.depth = det, depth }
}

// WithWakeClassifier injects the wake word classifier instead of loading
// the ONNX model.
func WithWakeClassifier(clf wakeword.Classifier) Option {
	return func(a *App) { a.wakeClf = clf }
}

// WithKeyboard enables key control reading from in.
func WithKeyboard(in io.Reader) Option {
	return func(a *App) { a.keys = in }
}

// WithMetrics records into m instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics of the ops endpoint.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously and binds every listening
// socket, so that a port conflict fails startup rather than Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		frames:    &frame.Cell{},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Device state ──────────────────────────────────────────────────
	if err := a.initDevice(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init device: %w", err)
	}

	// ── 3. Speech output ─────────────────────────────────────────────────
	if err := a.initSpeech(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init speech: %w", err)
	}

	// ── 4. Peripheral link ───────────────────────────────────────────────
	if err := a.initPeripheral(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init peripheral: %w", err)
	}

	// ── 5. Voice input ───────────────────────────────────────────────────
	a.initVoice()

	// ── 6. Intent resolver ───────────────────────────────────────────────
	if err := a.initIntent(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init intent: %w", err)
	}

	// ── 7. Camera and vision ─────────────────────────────────────────────
	if err := a.initVision(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init vision: %w", err)
	}

	// ── 8. Guardian link ─────────────────────────────────────────────────
	a.initGuardian()

	// ── 9. Wake word ─────────────────────────────────────────────────────
	if err := a.initWakeWord(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init wake word: %w", err)
	}

	// ── 10. Controller and keyboard ──────────────────────────────────────
	if err := a.initController(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init controller: %w", err)
	}

	// ── 11. Ops endpoint ─────────────────────────────────────────────────
	if err := a.initOps(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init ops: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured backend unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.cfg.Store.Backend == config.BackendPostgres || a.cfg.Intent.Index == config.BackendPostgres {
		pool, err := store.OpenPool(ctx, a.cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		a.pool = pool
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
	}

	if a.store != nil {
		return nil
	}
	switch a.cfg.Store.Backend {
	case config.BackendPostgres:
		s, err := store.NewPostgres(ctx, a.pool)
		if err != nil {
			return err
		}
		a.store = s
	default:
		s, err := store.OpenFile(a.cfg.Store.Path)
		if err != nil {
			return err
		}
		a.store = s
	}
	a.closers = append(a.closers, a.store.Close)
	return nil
}

// initDevice restores the persisted identity, language and mode.
func (a *App) initDevice(ctx context.Context) error {
	id, err := store.EnsureDeviceID(ctx, a.store)
	if err != nil {
		return err
	}
	a.deviceID = id

	list := make([]speech.Language, 0, len(a.cfg.Languages.Supported))
	for _, l := range a.cfg.Languages.Supported {
		list = append(list, speech.Language{Code: l.Code, Name: l.Name, Aliases: l.Aliases, Translate: l.Translate})
	}
	a.langs = speech.NewLanguages(a.cfg.Languages.Default, list)

	prefs, err := a.store.Preferences(ctx)
	if err != nil {
		return err
	}
	language := a.langs.Default().Code
	if l, ok := a.langs.Lookup(prefs.Language); ok {
		language = l.Code
	}

	initial := mode.Idle
	if m, ok := mode.Parse(prefs.LastMode); ok {
		initial = m
	}
	if a.cfg.Device.InitialMode != "" {
		m, ok := mode.Parse(a.cfg.Device.InitialMode)
		if !ok {
			return fmt.Errorf("unknown initial mode %q", a.cfg.Device.InitialMode)
		}
		initial = m
	}

	a.dc = controller.NewDeviceContext(a.frames, nil, initial, language)
	slog.Info("device state restored", "device_id", id, "mode", initial, "language", language)
	return nil
}

// initSpeech builds the synthesis chain and the speech arbiter.
func (a *App) initSpeech() error {
	if a.providers.TTS == nil {
		return errors.New("a tts provider is required")
	}
	if a.player == nil {
		a.player = audio.NewPlayer(a.cfg.Arbiter.SampleRate)
	}
	speaker := speech.NewSpeaker(a.langs, a.providers.TTS, a.player, speech.SpeakerConfig{
		Regional:   a.providers.RegionalTTS,
		Translator: a.providers.Translate,
		Metrics:    a.metrics,
	})
	a.arbiter = arbiter.New(speaker,
		arbiter.WithMinInterval(a.cfg.Arbiter.MinInterval),
		arbiter.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.arbiter.Close)
	return nil
}

// initPeripheral binds the sensor unit link. The device context receives its
// mode requests and wakes.
func (a *App) initPeripheral() error {
	if !a.cfg.Peripheral.Enabled {
		return nil
	}
	a.link = peripheral.New(peripheral.Config{
		ListenAddr:      a.cfg.Peripheral.ListenAddr,
		MaxPayloadBytes: a.cfg.Peripheral.MaxPayloadBytes,
		SampleRate:      a.cfg.Peripheral.SampleRate,
		Metrics:         a.metrics,
	}, a.dc)
	return a.link.Listen()
}

// initVoice selects the capture sources and the transcription chain.
func (a *App) initVoice() {
	var periph *capture.Peripheral
	var connected func() int
	if a.link != nil {
		periph = capture.NewPeripheral(a.link.Mailbox())
		connected = a.link.Connected
	}

	if a.mic == nil && a.cfg.Microphone.Enabled {
		if a.providers.VAD == nil {
			slog.Warn("microphone enabled without a vad provider, disabling it")
		} else {
			a.mic = capture.NewMicrophone(capture.OpenPortAudio, a.providers.VAD, capture.MicrophoneConfig{
				SampleRate:       a.cfg.Microphone.SampleRate,
				FrameSize:        a.cfg.Microphone.FrameSize,
				SpeechThreshold:  a.cfg.Microphone.SpeechThreshold,
				SilenceThreshold: a.cfg.Microphone.SilenceThreshold,
				Hangover:         a.cfg.Microphone.Hangover,
				MaxDuration:      a.cfg.Microphone.MaxDuration,
			})
			a.closers = append(a.closers, capture.TerminatePortAudio)
		}
	}

	switch a.cfg.Voice.Source {
	case config.VoicePeripheral:
		a.recorder = capture.NewAuto(periph, nil, nil)
	case config.VoiceMicrophone:
		a.recorder = capture.NewAuto(nil, a.mic, nil)
	default:
		a.recorder = capture.NewAuto(periph, a.mic, connected)
	}

	if a.providers.STT == nil {
		slog.Warn("no stt provider configured, voice commands disabled")
		return
	}
	group := resilience.NewFallbackGroup(a.providers.STT, a.cfg.Providers.STT.Name, resilience.FallbackConfig{})
	if a.providers.STTFallback != nil {
		group.AddFallback(a.cfg.Providers.STTFallback.Name, a.providers.STTFallback)
	}
	a.trans = speech.NewTranscriber(a.langs, group, speech.TranscriberConfig{
		Regional:   a.providers.RegionalSTT,
		Translator: a.providers.Translate,
		Metrics:    a.metrics,
	})
}

// initIntent builds the command resolver over a pending index and tries to
// train it. When the embedding service (or the index database) is down the
// device still starts: voice commands resolve to the default label until
// [App.Run] retrains in the background.
func (a *App) initIntent(ctx context.Context) error {
	emb := a.providers.Embeddings
	if emb == nil {
		slog.Warn("no embeddings provider configured, voice commands disabled")
		return nil
	}
	a.intentIndex = &intent.Pending{}
	a.resolver = intent.NewResolver(emb, a.intentIndex, intent.Config{
		DefaultLabel: mode.Label(a.cfg.Intent.DefaultLabel),
		Timeout:      a.cfg.Intent.Timeout,
		Metrics:      a.metrics,
	})
	if err := a.trainIntent(ctx); err != nil {
		slog.Warn("intent training failed, commands fall back to the default label until it succeeds",
			"default", a.cfg.Intent.DefaultLabel, "err", err)
	}
	return nil
}

// trainIntent loads or trains the classifier, mirrors it into PostgreSQL
// when the index lives there, and installs it in the pending index.
func (a *App) trainIntent(ctx context.Context) error {
	emb := a.providers.Embeddings
	clf, err := intent.LoadOrTrain(ctx, a.cfg.Intent.ClassifierPath, emb, intent.Examples(a.cfg.Intent.Examples))
	if err != nil {
		return err
	}

	var index intent.Index = clf
	if a.cfg.Intent.Index == config.BackendPostgres {
		pg, err := intent.NewPGIndex(ctx, a.pool, emb.ModelID(), clf.Dimensions)
		if err != nil {
			return err
		}
		stored, err := pg.Hash(ctx)
		if err != nil {
			return err
		}
		if stored != clf.ExamplesHash {
			if err := pg.Sync(ctx, clf); err != nil {
				return err
			}
			slog.Info("intent index synced", "examples", len(clf.Vectors))
		}
		index = pg
	}

	a.intentIndex.Set(index)
	slog.Info("intent resolver ready", "model", emb.ModelID(), "examples", len(clf.Vectors), "index", a.cfg.Intent.Index)
	return nil
}

// retrainIntent retries [App.trainIntent] with backoff until it succeeds or
// ctx ends. It never fails the run group.
func (a *App) retrainIntent(ctx context.Context) error {
	b := resilience.NewBackoff(a.cfg.Intent.RetryInterval, time.Minute)
	for !a.intentIndex.Ready() {
		if err := b.Wait(ctx); err != nil {
			return nil
		}
		if err := a.trainIntent(ctx); err != nil {
			slog.Warn("intent training retry failed", "err", err)
		}
	}
	return nil
}

// initVision starts the frame poller and loads the vision models.
func (a *App) initVision() error {
	if a.cfg.Camera.Enabled {
		if a.camera == nil {
			a.camera = frame.CameraOpener(frame.CameraConfig{
				Device:      a.cfg.Camera.Device,
				Source:      a.cfg.Camera.Source,
				Width:       a.cfg.Camera.Width,
				Height:      a.cfg.Camera.Height,
				JPEGQuality: a.cfg.Camera.JPEGQuality,
			})
		}
		a.poller = frame.NewPoller(a.camera, a.frames, frame.PollerConfig{
			Interval:       a.cfg.Camera.FrameInterval,
			ReopenAfter:    a.cfg.Camera.ReopenAfter,
			BackoffInitial: a.cfg.Camera.BackoffInitial,
			BackoffMax:     a.cfg.Camera.BackoffMax,
			Metrics:        a.metrics,
		})
	}

	if !a.cfg.Vision.Enabled {
		return nil
	}
	if a.detector == nil {
		yolo, err := onnx.NewYOLO(onnx.YOLOConfig{
			ModelPath:      a.cfg.Vision.DetectorModel,
			ClassesPath:    a.cfg.Vision.ClassesPath,
			ScoreThreshold: float32(a.cfg.Vision.ConfidenceCutoff),
			InputSize:      a.cfg.Vision.InputSize,
		})
		if err != nil {
			return err
		}
		a.detector = yolo
		a.closers = append(a.closers, yolo.Close)
	}
	if a.depth == nil {
		midas, err := onnx.NewMiDaS(a.cfg.Vision.DepthModel)
		if err != nil {
			return err
		}
		a.depth = midas
		a.closers = append(a.closers, midas.Close)
	}

	a.pipeline = vision.NewPipeline(a.detector, a.depth, a.arbiter, vision.Config{
		ConfidenceCutoff: a.cfg.Vision.ConfidenceCutoff,
		CloseDepth:       a.cfg.Vision.CloseDepth,
		DepthInterval:    a.cfg.Vision.DepthInterval,
		Metrics:          a.metrics,
	})
	a.narrator = vision.NewSupervisor(a.pipeline, a.frames, vision.NarrationConfig{
		Interval: a.cfg.Vision.PassiveInterval,
		Volume:   a.cfg.Arbiter.PassiveVolume,
		Language: a.dc.Language,
		Silenced: a.silenced,
		Metrics:  a.metrics,
	})
	return nil
}

// silenced holds background narration back while a voice interaction is
// pending or in progress.
func (a *App) silenced() bool {
	return a.dc.WakePending() || (a.ctl != nil && a.ctl.InDialog())
}

// initGuardian creates the caregiver link.
func (a *App) initGuardian() {
	if !a.cfg.Guardian.Enabled {
		return
	}
	a.guardian = services.NewGuardian(services.GuardianConfig{
		APIURL:         a.cfg.Guardian.APIURL,
		SocketURL:      a.cfg.Guardian.SocketURL,
		DeviceID:       a.deviceID,
		StatusInterval: a.cfg.Guardian.StatusInterval,
		BackoffInitial: a.cfg.Guardian.BackoffInitial,
		BackoffMax:     a.cfg.Guardian.BackoffMax,
		Mode:           func() string { return a.dc.Mode().String() },
	})
}

// initWakeWord binds the microphone stream server. Every trigger raises the
// shared wake signal.
func (a *App) initWakeWord() error {
	if !a.cfg.WakeWord.Enabled {
		return nil
	}
	if a.wakeClf == nil {
		clf, err := wakeword.NewONNXClassifier(a.cfg.WakeWord.ModelPath)
		if err != nil {
			return err
		}
		a.wakeClf = clf
		a.closers = append(a.closers, clf.Close)
	}
	a.wake = wakeword.NewServer(wakeword.ServerConfig{
		ListenAddr: a.cfg.WakeWord.ListenAddr,
		Buffer:     a.cfg.WakeWord.Buffer,
		Detector: wakeword.Config{
			SampleRate: a.cfg.WakeWord.SampleRate,
			Window:     a.cfg.WakeWord.Window,
			Stride:     a.cfg.WakeWord.Stride,
			Threshold:  a.cfg.WakeWord.Threshold,
			Cooldown:   a.cfg.WakeWord.Cooldown,
		},
		Metrics: a.metrics,
	}, a.wakeClf, func() { a.dc.Wake("wakeword") })
	return a.wake.Listen()
}

// initController assembles the mode controller from everything above. Nil
// subsystems stay nil interfaces so that the controller can report the
// affected features as unavailable.
func (a *App) initController() error {
	deps := controller.Deps{
		Speaker:   a.arbiter,
		Volume:    a.player,
		Store:     a.store,
		Languages: a.langs,
		Matcher:   phonetic.New(),
		OCR:       a.providers.OCR,
		Currency:  a.providers.Currency,
		Geo:       a.providers.Geo,
		LLM:       a.providers.LLM,
		Describer: a.providers.Describe,
	}
	if a.link != nil {
		deps.Link = a.link
		deps.Inbox = a.link.Mailbox()
	}
	if a.link != nil || a.mic != nil {
		deps.Recorder = a.recorder
	}
	if a.trans != nil {
		deps.Transcriber = a.trans
	}
	if a.resolver != nil {
		deps.Resolver = a.resolver
	}
	if a.pipeline != nil {
		deps.Vision = a.pipeline
		deps.Narrator = a.narrator
	}
	if a.guardian != nil {
		deps.Guardian = a.guardian
	}

	a.ctl = controller.New(a.dc, deps, controller.Config{
		TickInterval:     a.cfg.Device.TickInterval,
		ListenTimeout:    a.cfg.Voice.ListenTimeout,
		VoiceAttempts:    a.cfg.Voice.MaxAttempts,
		ReadingAttempts:  a.cfg.Reading.MaxAttempts,
		VolumeStep:       a.cfg.Arbiter.VolumeStep,
		DeviceID:         a.deviceID,
		FallbackPosition: geo.Position{Lat: a.cfg.Location.FallbackLat, Lng: a.cfg.Location.FallbackLng},
		NearbyRadius:     a.cfg.Location.NearbyRadius,
		MaxPlaces:        a.cfg.Location.MaxPlaces,
		Chat: llm.Request{
			SystemPrompt: a.cfg.Chat.SystemPrompt,
			Temperature:  a.cfg.Chat.Temperature,
			MaxTokens:    a.cfg.Chat.MaxTokens,
		},
		ChatTurns: a.cfg.Chat.MaxTurns,
		Metrics:   a.metrics,
	})

	if a.keys != nil && a.cfg.Keyboard.Enabled {
		keys, err := keyboard.ParseMap(a.cfg.Keyboard.Keys)
		if err != nil {
			return err
		}
		a.keyReader = keyboard.NewReader(a.keys, keys, a.dc)
	}
	return nil
}

// initOps binds the health and metrics endpoint.
func (a *App) initOps() error {
	if a.cfg.Server.OpsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	health.New(a.checkers()...).Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("/metrics", a.metricsHandler)
	}

	ln, err := net.Listen("tcp", a.cfg.Server.OpsAddr)
	if err != nil {
		return err
	}
	a.opsLn = ln
	a.ops = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("ops endpoint listening", "addr", ln.Addr())
	return nil
}

// checkers lists the readiness checks of the enabled subsystems.
func (a *App) checkers() []health.Checker {
	var cs []health.Checker
	if a.pool != nil {
		cs = append(cs, health.Ping("postgres", a.pool, false))
	}
	if a.poller != nil {
		cs = append(cs, health.Fresh("camera", a.frames.LastUpdate, 5*time.Second, false))
	}
	if a.link != nil {
		cs = append(cs, health.Checker{Name: "peripheral", Optional: true, Check: func(context.Context) error {
			if a.link.Connected() == 0 {
				return errors.New("no sensor unit connected")
			}
			return nil
		}})
	}
	if a.guardian != nil {
		cs = append(cs, health.Checker{Name: "guardian", Optional: true, Check: func(context.Context) error {
			if !a.guardian.Online() {
				return services.ErrOffline
			}
			return nil
		}})
	}
	return cs
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Context returns the shared device state.
func (a *App) Context() *controller.DeviceContext { return a.dc }

// Controller returns the mode controller.
func (a *App) Controller() *controller.Controller { return a.ctl }

// DeviceID returns the persisted device identifier.
func (a *App) DeviceID() string { return a.deviceID }

// Resolver returns the command resolver, or nil without an embeddings
// provider.
func (a *App) Resolver() *intent.Resolver { return a.resolver }

// PeripheralAddr returns the bound sensor unit address, or nil when the link
// is disabled.
func (a *App) PeripheralAddr() net.Addr {
	if a.link == nil {
		return nil
	}
	return a.link.Addr()
}

// WakeWordAddr returns the bound wake word stream address, or nil when the
// detector is disabled.
func (a *App) WakeWordAddr() net.Addr {
	if a.wake == nil {
		return nil
	}
	return a.wake.Addr()
}

// OpsAddr returns the bound ops endpoint address, or nil when disabled.
func (a *App) OpsAddr() net.Addr {
	if a.opsLn == nil {
		return nil
	}
	return a.opsLn.Addr()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts every sensor loop and the mode controller and blocks until ctx
// is cancelled or the device enters shutdown mode. A subsystem failure stops
// the others and is returned.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if a.link != nil {
		g.Go(func() error { return a.link.Run(ctx) })
	}
	if a.wake != nil {
		g.Go(func() error { return a.wake.Run(ctx) })
	}
	if a.poller != nil {
		g.Go(func() error { return a.poller.Run(ctx) })
	}
	if a.guardian != nil {
		g.Go(func() error { return a.guardian.Run(ctx) })
	}
	if a.keyReader != nil {
		g.Go(func() error { return a.keyReader.Run(ctx) })
	}
	if a.intentIndex != nil && !a.intentIndex.Ready() {
		g.Go(func() error { return a.retrainIntent(ctx) })
	}
	if a.ops != nil {
		g.Go(func() error {
			if err := a.ops.Serve(a.opsLn); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: ops endpoint: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return a.ops.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return a.ctl.Run(ctx)
	})

	slog.Info("device running", "device_id", a.deviceID, "mode", a.dc.Mode())
	return g.Wait()
}

// Reconfigure applies the hot-reloadable part of a config change.
func (a *App) Reconfigure(d config.Diff) {
	if d.ArbiterChanged {
		a.arbiter.SetMinInterval(d.MinInterval)
		if a.narrator != nil {
			a.narrator.SetVolume(d.PassiveVolume)
		}
		slog.Info("arbiter reconfigured", "min_interval", d.MinInterval, "passive_volume", d.PassiveVolume)
	}
	if d.VisionChanged && a.pipeline != nil {
		a.pipeline.SetThresholds(d.ConfidenceCutoff, d.CloseDepth, d.DepthInterval)
		slog.Info("vision reconfigured", "cutoff", d.ConfidenceCutoff, "close_depth", d.CloseDepth)
	}
	if d.WakeWordChanged && a.wake != nil {
		a.wake.SetThreshold(d.Threshold)
		slog.Info("wake word reconfigured", "threshold", d.Threshold)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.narrator != nil {
			a.narrator.Stop()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what a failed New had already opened.
func (a *App) closeAll() {
	if a.link != nil {
		a.link.Close() //nolint:errcheck
	}
	if a.wake != nil {
		a.wake.Close() //nolint:errcheck
	}
	if a.opsLn != nil {
		a.opsLn.Close() //nolint:errcheck
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
