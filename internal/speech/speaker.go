package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/codes"

	"github.com/sightwear/sightwear/internal/arbiter"
	"github.com/sightwear/sightwear/internal/observe"
	"github.com/sightwear/sightwear/pkg/provider/translate"
	"github.com/sightwear/sightwear/pkg/provider/tts"
)

// Player plays a WAV clip to completion.
type Player interface {
	Play(ctx context.Context, wav []byte, volume float64) error
}

// SpeakerConfig configures a [Speaker].
type SpeakerConfig struct {
	// Regional synthesises translated languages. Nil speaks every language
	// through the direct provider.
	Regional tts.Provider

	// Translator renders English prompts in translated languages.
	Translator translate.Provider

	// CacheSize bounds the rendered clip cache. Default: 64.
	CacheSize int

	Metrics *observe.Metrics
}

// Speaker renders text in the requested language and plays it. It implements
// [arbiter.Speaker]; the arbiter guarantees Speak is never called
// concurrently with itself.
type Speaker struct {
	langs  *Languages
	direct tts.Provider
	player Player
	cfg    SpeakerConfig

	mu    sync.Mutex
	cache map[string][]byte
	order []string
}

var _ arbiter.Speaker = (*Speaker)(nil)

// NewSpeaker returns a Speaker synthesising through direct by default.
func NewSpeaker(langs *Languages, direct tts.Provider, player Player, cfg SpeakerConfig) *Speaker {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 64
	}
	return &Speaker{
		langs:  langs,
		direct: direct,
		player: player,
		cfg:    cfg,
		cache:  make(map[string][]byte, cfg.CacheSize),
	}
}

// Speak implements [arbiter.Speaker].
func (s *Speaker) Speak(ctx context.Context, text, language string, volume float64) error {
	if text == "" {
		return nil
	}
	wav, err := s.Render(ctx, text, language)
	if err != nil {
		return err
	}
	if err := s.player.Play(ctx, wav, volume); err != nil {
		return fmt.Errorf("speech: play: %w", err)
	}
	return nil
}

// Render returns the WAV clip for text in language. Clips are cached by
// language and text, since prompts repeat constantly.
func (s *Speaker) Render(ctx context.Context, text, language string) ([]byte, error) {
	if language == "" {
		language = s.langs.Default().Code
	}
	key := language + "\x00" + text
	if wav, ok := s.cached(key); ok {
		return wav, nil
	}

	var (
		wav []byte
		err error
	)
	if s.langs.Translated(language) && s.cfg.Regional != nil && s.cfg.Translator != nil {
		wav, err = s.regional(ctx, text, language)
		if err != nil {
			observe.Logger(ctx).Warn("regional speech failed, speaking English", "language", language, "err", err)
			wav, err = s.synthesize(ctx, s.direct, "direct", text, Source)
		}
	} else {
		wav, err = s.synthesize(ctx, s.direct, "direct", text, language)
	}
	if err != nil {
		return nil, err
	}
	s.store(key, wav)
	return wav, nil
}

func (s *Speaker) regional(ctx context.Context, text, language string) ([]byte, error) {
	ctx, span := observe.StartProviderSpan(ctx, "translate", language)
	translated, err := s.cfg.Translator.Translate(ctx, text, Source, language)
	span.End()
	if err != nil {
		s.providerError(ctx, "translate")
		return nil, fmt.Errorf("speech: translate: %w", err)
	}
	if translated == "" {
		return nil, errors.New("speech: empty translation")
	}
	return s.synthesize(ctx, s.cfg.Regional, "regional", translated, language)
}

func (s *Speaker) synthesize(ctx context.Context, p tts.Provider, name, text, language string) ([]byte, error) {
	ctx, span := observe.StartProviderSpan(ctx, "tts", name)
	defer span.End()
	wav, err := p.Synthesize(ctx, text, language)
	if err == nil && len(wav) == 0 {
		err = errors.New("empty clip")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.providerError(ctx, "tts")
		return nil, fmt.Errorf("speech: synthesize %s: %w", language, err)
	}
	return wav, nil
}

func (s *Speaker) providerError(ctx context.Context, provider string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordProviderError(ctx, provider, "error")
	}
}

func (s *Speaker) cached(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wav, ok := s.cache[key]
	return wav, ok
}

func (s *Speaker) store(key string, wav []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[key]; ok {
		return
	}
	if len(s.order) >= s.cfg.CacheSize {
		delete(s.cache, s.order[0])
		s.order = s.order[1:]
	}
	s.cache[key] = wav
	s.order = append(s.order, key)
}
