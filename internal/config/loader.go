package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sightwear/sightwear/internal/mode"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native", "openai", "ghananlp"},
	"tts":        {"coqui", "piper", "ghananlp"},
	"translate":  {"ghananlp"},
	"embeddings": {"openai", "ollama"},
	"llm":        {"openai", "ollama", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"describe":   {"gemini"},
	"ocr":        {"ocrspace"},
	"currency":   {"detector"},
	"geo":        {"google"},
	"vad":        {"energy"},
}

// LoadEnv loads KEY=VALUE files into the process environment. Missing files
// are skipped; variables already set are never overwritten.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			slog.Debug("env file not found, skipping", "path", p)
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes a YAML config from r,
// applies defaults and validates the result. An empty document yields the
// default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces ${VAR} with the value of VAR. Bare $ characters are
// left alone so that secrets containing them survive.
func ExpandEnv(s string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(os.Getenv(s[i+2 : i+j]))
		s = s[i+j+1:]
	}
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if m := cfg.Device.InitialMode; m != "" {
		if _, ok := mode.Parse(m); !ok {
			errs = append(errs, fmt.Errorf("device.initial_mode %q is not a mode", m))
		}
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	validateProviderName("stt", cfg.Providers.RegionalSTT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("tts", cfg.Providers.RegionalTTS.Name)
	validateProviderName("translate", cfg.Providers.Translate.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("describe", cfg.Providers.Describe.Name)
	validateProviderName("ocr", cfg.Providers.OCR.Name)
	validateProviderName("currency", cfg.Providers.Currency.Name)
	validateProviderName("geo", cfg.Providers.Geo.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; the device will be silent")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; every voice command will resolve to the default label")
	}

	// Languages
	codes := make(map[string]bool, len(cfg.Languages.Supported))
	regional := false
	for i, l := range cfg.Languages.Supported {
		prefix := fmt.Sprintf("languages.supported[%d]", i)
		if l.Code == "" {
			errs = append(errs, fmt.Errorf("%s.code is required", prefix))
			continue
		}
		if codes[l.Code] {
			errs = append(errs, fmt.Errorf("%s.code %q is a duplicate", prefix, l.Code))
		}
		codes[l.Code] = true
		regional = regional || l.Translate
	}
	if len(codes) > 0 && !codes[cfg.Languages.Default] {
		errs = append(errs, fmt.Errorf("languages.default %q is not in languages.supported", cfg.Languages.Default))
	}
	if regional && (cfg.Providers.Translate.Name == "" || cfg.Providers.RegionalTTS.Name == "") {
		slog.Warn("a translated language is configured without providers.translate and providers.regional_tts; it will be spoken in the default language")
	}

	// Tunables
	if cfg.Arbiter.MinInterval < 0 {
		errs = append(errs, errors.New("arbiter.min_interval must not be negative"))
	}
	if !inUnit(cfg.Arbiter.PassiveVolume) {
		errs = append(errs, fmt.Errorf("arbiter.passive_volume %.2f is out of range [0, 1]", cfg.Arbiter.PassiveVolume))
	}
	if cfg.Arbiter.VolumeStep > 1 {
		errs = append(errs, fmt.Errorf("arbiter.volume_step %.2f is out of range (0, 1]", cfg.Arbiter.VolumeStep))
	}
	if !inUnit(cfg.WakeWord.Threshold) {
		errs = append(errs, fmt.Errorf("wakeword.threshold %.2f is out of range [0, 1]", cfg.WakeWord.Threshold))
	}
	if cfg.WakeWord.Window > cfg.WakeWord.Buffer {
		errs = append(errs, fmt.Errorf("wakeword.window %s exceeds wakeword.buffer %s", cfg.WakeWord.Window, cfg.WakeWord.Buffer))
	}
	if cfg.WakeWord.Enabled && cfg.WakeWord.ModelPath == "" {
		errs = append(errs, errors.New("wakeword.model_path is required when wakeword is enabled"))
	}
	if !cfg.Voice.Source.IsValid() {
		errs = append(errs, fmt.Errorf("voice.source %q is invalid; valid values: auto, peripheral, microphone", cfg.Voice.Source))
	}
	if cfg.Microphone.SilenceThreshold > cfg.Microphone.SpeechThreshold {
		errs = append(errs, errors.New("microphone.silence_threshold must not exceed microphone.speech_threshold"))
	}
	if !inUnit(cfg.Vision.ConfidenceCutoff) {
		errs = append(errs, fmt.Errorf("vision.confidence_cutoff %.2f is out of range [0, 1]", cfg.Vision.ConfidenceCutoff))
	}
	if cfg.Vision.Enabled && cfg.Vision.DetectorModel == "" {
		errs = append(errs, errors.New("vision.detector_model is required when vision is enabled"))
	}
	if cfg.Peripheral.MaxPayloadBytes < 0 {
		errs = append(errs, errors.New("peripheral.max_payload_bytes must not be negative"))
	}

	// Intent
	if !cfg.Intent.Index.IsValid() {
		errs = append(errs, fmt.Errorf("intent.index %q is invalid; valid values: file, postgres", cfg.Intent.Index))
	}
	if cfg.Intent.Index == BackendPostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("intent.index postgres requires store.postgres_dsn"))
	}
	for label, phrases := range cfg.Intent.Examples {
		if len(phrases) == 0 {
			errs = append(errs, fmt.Errorf("intent.examples[%q] has no phrases", label))
		}
	}

	// Store
	if !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: file, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == BackendPostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
	}

	// Guardian
	if cfg.Guardian.Enabled && cfg.Guardian.SocketURL == "" {
		errs = append(errs, errors.New("guardian.socket_url is required when guardian is enabled"))
	}

	// Keyboard
	for key, target := range cfg.Keyboard.Keys {
		if utf8.RuneCountInString(key) != 1 {
			errs = append(errs, fmt.Errorf("keyboard.keys[%q] must be a single character", key))
		}
		if target == "voice" {
			continue
		}
		if _, ok := mode.Parse(target); !ok {
			errs = append(errs, fmt.Errorf("keyboard.keys[%q] = %q is neither a mode nor \"voice\"", key, target))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
