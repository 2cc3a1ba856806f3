package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/sightwear/sightwear/internal/app"
	"github.com/sightwear/sightwear/internal/config"
	"github.com/sightwear/sightwear/pkg/provider/currency"
	"github.com/sightwear/sightwear/pkg/provider/currency/detector"
	"github.com/sightwear/sightwear/pkg/provider/describe"
	geminidescribe "github.com/sightwear/sightwear/pkg/provider/describe/gemini"
	"github.com/sightwear/sightwear/pkg/provider/embeddings"
	ollamaembed "github.com/sightwear/sightwear/pkg/provider/embeddings/ollama"
	oaembed "github.com/sightwear/sightwear/pkg/provider/embeddings/openai"
	"github.com/sightwear/sightwear/pkg/provider/geo"
	"github.com/sightwear/sightwear/pkg/provider/geo/google"
	"github.com/sightwear/sightwear/pkg/provider/ghananlp"
	"github.com/sightwear/sightwear/pkg/provider/llm"
	"github.com/sightwear/sightwear/pkg/provider/llm/anyllm"
	ollamallm "github.com/sightwear/sightwear/pkg/provider/llm/ollama"
	oallm "github.com/sightwear/sightwear/pkg/provider/llm/openai"
	"github.com/sightwear/sightwear/pkg/provider/ocr"
	"github.com/sightwear/sightwear/pkg/provider/ocr/ocrspace"
	"github.com/sightwear/sightwear/pkg/provider/stt"
	oastt "github.com/sightwear/sightwear/pkg/provider/stt/openai"
	"github.com/sightwear/sightwear/pkg/provider/stt/whisper"
	"github.com/sightwear/sightwear/pkg/provider/translate"
	"github.com/sightwear/sightwear/pkg/provider/tts"
	"github.com/sightwear/sightwear/pkg/provider/tts/coqui"
	"github.com/sightwear/sightwear/pkg/provider/tts/piper"
	"github.com/sightwear/sightwear/pkg/provider/vad"
	"github.com/sightwear/sightwear/pkg/provider/vad/energy"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.STT.Register("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.STT.Register("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.Option("model_path", "")
		}
		var opts []whisper.NativeOption
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.STT.Register("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oastt.WithTimeout(entry.Timeout))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.STT.Register("ghananlp", func(entry config.ProviderEntry) (stt.Provider, error) {
		return newGhanaNLP(entry)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.TTS.Register("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if mode := entry.Option("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if speaker := entry.Option("speaker", ""); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if entry.Timeout > 0 {
			opts = append(opts, coqui.WithTimeout(entry.Timeout))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.TTS.Register("piper", func(entry config.ProviderEntry) (tts.Provider, error) {
		return piper.New(entry.BaseURL, optStringMap(entry.Options, "voices"))
	})

	reg.TTS.Register("ghananlp", func(entry config.ProviderEntry) (tts.Provider, error) {
		return newGhanaNLP(entry)
	})

	// ── Translation ───────────────────────────────────────────────────────────

	reg.Translate.Register("ghananlp", func(entry config.ProviderEntry) (translate.Provider, error) {
		return newGhanaNLP(entry)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.Embeddings.Register("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if dims := entry.IntOption("dimensions", 0); dims > 0 {
			opts = append(opts, oaembed.WithDimensions(dims))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oaembed.WithTimeout(entry.Timeout))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.Embeddings.Register("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := entry.IntOption("dimensions", 0); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		if entry.Timeout > 0 {
			opts = append(opts, ollamaembed.WithTimeout(entry.Timeout))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.LLM.Register("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oallm.WithTimeout(entry.Timeout))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.LLM.Register("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []ollamallm.Option
		if entry.Timeout > 0 {
			opts = append(opts, ollamallm.WithTimeout(entry.Timeout))
		}
		return ollamallm.New(entry.BaseURL, entry.Model, opts...)
	})

	// Every other backend goes through any-llm-go with an optional APIKey and
	// BaseURL. openai and ollama keep their dedicated adapters.
	for _, providerName := range anyllm.Backends() {
		if providerName == "openai" || providerName == "ollama" {
			continue
		}
		reg.LLM.Register(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── Scene description ─────────────────────────────────────────────────────

	reg.Describe.Register("gemini", func(entry config.ProviderEntry) (describe.Provider, error) {
		var opts []geminidescribe.Option
		if entry.BaseURL != "" {
			opts = append(opts, geminidescribe.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, geminidescribe.WithTimeout(entry.Timeout))
		}
		if n := entry.IntOption("max_tokens", 0); n > 0 {
			opts = append(opts, geminidescribe.WithMaxTokens(n))
		}
		return geminidescribe.New(ctx, entry.APIKey, entry.Model, opts...)
	})

	// ── OCR, currency and location ────────────────────────────────────────────

	reg.OCR.Register("ocrspace", func(entry config.ProviderEntry) (ocr.Provider, error) {
		var opts []ocrspace.Option
		if entry.BaseURL != "" {
			opts = append(opts, ocrspace.WithURL(entry.BaseURL))
		}
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, ocrspace.WithLanguage(lang))
		}
		if entry.Timeout > 0 {
			opts = append(opts, ocrspace.WithTimeout(entry.Timeout))
		}
		return ocrspace.New(entry.APIKey, opts...)
	})

	reg.Currency.Register("detector", func(entry config.ProviderEntry) (currency.Provider, error) {
		var opts []detector.Option
		if entry.Timeout > 0 {
			opts = append(opts, detector.WithTimeout(entry.Timeout))
		}
		if c := optFloat(entry.Options, "min_confidence"); c > 0 {
			opts = append(opts, detector.WithMinConfidence(c))
		}
		return detector.New(entry.BaseURL, opts...)
	})

	reg.Geo.Register("google", func(entry config.ProviderEntry) (geo.Provider, error) {
		var opts []google.Option
		if entry.Timeout > 0 {
			opts = append(opts, google.WithTimeout(entry.Timeout))
		}
		if gl, maps := entry.Option("geolocation_url", ""), entry.Option("maps_url", ""); gl != "" || maps != "" {
			opts = append(opts, google.WithBaseURLs(gl, maps))
		}
		return google.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.VAD.Register("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.Engine{}, nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// newGhanaNLP builds the GhanaNLP client, which serves the regional speech
// and translation slots. Options.speakers maps a language code to a voice.
func newGhanaNLP(entry config.ProviderEntry) (*ghananlp.Client, error) {
	var opts []ghananlp.Option
	if entry.BaseURL != "" {
		opts = append(opts, ghananlp.WithBaseURL(entry.BaseURL))
	}
	for lang, speaker := range optStringMap(entry.Options, "speakers") {
		opts = append(opts, ghananlp.WithSpeaker(lang, speaker))
	}
	return ghananlp.New(entry.APIKey, opts...)
}

// create instantiates one provider slot. An empty name leaves the slot nil;
// a name nobody registered is logged and skipped.
func create[T any](f *config.Factories[T], kind string, entry config.ProviderEntry, closers *[]io.Closer) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	p, err := f.Create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	if c, ok := any(p).(io.Closer); ok {
		*closers = append(*closers, c)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. The returned func closes the providers that hold resources.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, func(), error) {
	ps := &app.Providers{}
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}

	pc := cfg.Providers
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	ps.STT, err = create(&reg.STT, "stt", pc.STT, &closers)
	collect(err)
	ps.STTFallback, err = create(&reg.STT, "stt_fallback", pc.STTFallback, &closers)
	collect(err)
	ps.TTS, err = create(&reg.TTS, "tts", pc.TTS, &closers)
	collect(err)
	ps.RegionalSTT, err = create(&reg.STT, "regional_stt", pc.RegionalSTT, &closers)
	collect(err)
	ps.RegionalTTS, err = create(&reg.TTS, "regional_tts", pc.RegionalTTS, &closers)
	collect(err)
	ps.Translate, err = create(&reg.Translate, "translate", pc.Translate, &closers)
	collect(err)
	ps.Embeddings, err = create(&reg.Embeddings, "embeddings", pc.Embeddings, &closers)
	collect(err)
	ps.LLM, err = create(&reg.LLM, "llm", pc.LLM, &closers)
	collect(err)
	ps.Describe, err = create(&reg.Describe, "describe", pc.Describe, &closers)
	collect(err)
	ps.OCR, err = create(&reg.OCR, "ocr", pc.OCR, &closers)
	collect(err)
	ps.Currency, err = create(&reg.Currency, "currency", pc.Currency, &closers)
	collect(err)
	ps.Geo, err = create(&reg.Geo, "geo", pc.Geo, &closers)
	collect(err)
	ps.VAD, err = create(&reg.VAD, "vad", pc.VAD, &closers)
	collect(err)

	if len(errs) > 0 {
		closeAll()
		return nil, func() {}, errors.Join(errs...)
	}
	return ps, closeAll, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optStringMap extracts a map of strings from a provider Options value.
// Non-string entries are skipped.
func optStringMap(opts map[string]any, key string) map[string]string {
	raw, ok := opts[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// optFloat extracts a number from a provider Options value, or 0.
func optFloat(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
