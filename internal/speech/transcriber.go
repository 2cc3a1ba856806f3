package speech

import (
	"context"
	"fmt"
	"strings"

	"github.com/sightwear/sightwear/internal/observe"
	"github.com/sightwear/sightwear/internal/resilience"
	"github.com/sightwear/sightwear/pkg/audio"
	"github.com/sightwear/sightwear/pkg/provider/stt"
	"github.com/sightwear/sightwear/pkg/provider/translate"
)

// TranscriberConfig configures a [Transcriber].
type TranscriberConfig struct {
	// Regional recognises translated languages. Nil transcribes every
	// language through the direct group.
	Regional stt.Provider

	// Translator turns regional transcripts into English.
	Translator translate.Provider

	Metrics *observe.Metrics
}

// Transcriber turns captured speech into English text for the intent
// resolver and the chat assistant.
type Transcriber struct {
	langs  *Languages
	direct *resilience.FallbackGroup[stt.Provider]
	cfg    TranscriberConfig
}

// NewTranscriber returns a Transcriber. direct is tried in registration
// order, so a hosted recogniser can back up the on-device one.
func NewTranscriber(langs *Languages, direct *resilience.FallbackGroup[stt.Provider], cfg TranscriberConfig) *Transcriber {
	return &Transcriber{langs: langs, direct: direct, cfg: cfg}
}

// Transcribe returns the English text spoken in clip. Silence yields "".
func (t *Transcriber) Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	if clip.Empty() {
		return "", nil
	}
	ctx, span := observe.StartSpan(ctx, "speech.transcribe")
	defer span.End()

	if t.langs.Translated(language) && t.cfg.Regional != nil && t.cfg.Translator != nil {
		text, err := t.regional(ctx, clip, language)
		if err == nil {
			return text, nil
		}
		observe.Logger(ctx).Warn("regional transcription failed, trying English", "language", language, "err", err)
	}

	text, err := resilience.ExecuteWithResult(t.direct, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, clip, Source)
	})
	if err != nil {
		t.providerError(ctx, "stt")
		return "", fmt.Errorf("speech: transcribe: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (t *Transcriber) regional(ctx context.Context, clip audio.Clip, language string) (string, error) {
	text, err := t.cfg.Regional.Transcribe(ctx, clip, language)
	if err != nil {
		t.providerError(ctx, "stt")
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	english, err := t.cfg.Translator.Translate(ctx, text, language, Source)
	if err != nil {
		t.providerError(ctx, "translate")
		return "", err
	}
	return strings.TrimSpace(english), nil
}

func (t *Transcriber) providerError(ctx context.Context, provider string) {
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.RecordProviderError(ctx, provider, "error")
	}
}
