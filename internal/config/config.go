// Package config provides the configuration schema, loader, defaults and
// provider registry for the sightwear device runtime.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Backend selects a storage implementation.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendPostgres Backend = "postgres"
)

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool { return b == BackendFile || b == BackendPostgres }

// VoiceSource selects where voice commands are captured.
type VoiceSource string

const (
	// VoiceAuto uses the peripheral while one is connected, the local
	// microphone otherwise.
	VoiceAuto       VoiceSource = "auto"
	VoicePeripheral VoiceSource = "peripheral"
	VoiceMicrophone VoiceSource = "microphone"
)

// IsValid reports whether s is a recognised voice source.
func (s VoiceSource) IsValid() bool {
	switch s {
	case VoiceAuto, VoicePeripheral, VoiceMicrophone:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file with [Load] and completed with [ApplyDefaults].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Device     DeviceConfig     `yaml:"device"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Languages  LanguagesConfig  `yaml:"languages"`
	Arbiter    ArbiterConfig    `yaml:"arbiter"`
	Camera     CameraConfig     `yaml:"camera"`
	Peripheral PeripheralConfig `yaml:"peripheral"`
	WakeWord   WakeWordConfig   `yaml:"wakeword"`
	Voice      VoiceConfig      `yaml:"voice"`
	Microphone MicrophoneConfig `yaml:"microphone"`
	Intent     IntentConfig     `yaml:"intent"`
	Vision     VisionConfig     `yaml:"vision"`
	Reading    ReadingConfig    `yaml:"reading"`
	Chat       ChatConfig       `yaml:"chat"`
	Location   LocationConfig   `yaml:"location"`
	Store      StoreConfig      `yaml:"store"`
	Guardian   GuardianConfig   `yaml:"guardian"`
	Keyboard   KeyboardConfig   `yaml:"keyboard"`
}

// ServerConfig holds logging and operations endpoint settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile enables a rotating log file next to stderr.
	LogFile LogFileConfig `yaml:"log_file"`

	// OpsAddr serves /healthz, /readyz and /metrics. Empty disables it.
	OpsAddr string `yaml:"ops_addr"`
}

// LogFileConfig configures log rotation. An empty Path disables the file.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DeviceConfig holds identity and lifecycle settings.
type DeviceConfig struct {
	// InitialMode overrides the persisted last mode at startup.
	InitialMode string `yaml:"initial_mode"`

	// TickInterval paces the controller loop. Default: 66ms.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// ProvidersConfig selects the implementation of every external collaborator.
// An entry with an empty Name disables the feature that needs it.
type ProvidersConfig struct {
	STT         ProviderEntry `yaml:"stt"`
	STTFallback ProviderEntry `yaml:"stt_fallback"`
	TTS         ProviderEntry `yaml:"tts"`

	// RegionalSTT and RegionalTTS serve the languages marked translate in
	// [LanguagesConfig].
	RegionalSTT ProviderEntry `yaml:"regional_stt"`
	RegionalTTS ProviderEntry `yaml:"regional_tts"`
	Translate   ProviderEntry `yaml:"translate"`

	Embeddings ProviderEntry `yaml:"embeddings"`
	LLM        ProviderEntry `yaml:"llm"`
	Describe   ProviderEntry `yaml:"describe"`
	OCR        ProviderEntry `yaml:"ocr"`
	Currency   ProviderEntry `yaml:"currency"`
	Geo        ProviderEntry `yaml:"geo"`
	VAD        ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
// Name selects the constructor in the [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Timeout bounds each call. Zero leaves the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`
}

// LanguageConfig describes one selectable output language.
type LanguageConfig struct {
	// Code is the ISO 639-1 code ("en", "tw").
	Code string `yaml:"code"`

	// Name is spoken back to the user ("Twi").
	Name string `yaml:"name"`

	// Aliases are extra words that select this language by voice.
	Aliases []string `yaml:"aliases"`

	// Translate routes speech through the translator and the regional
	// providers instead of synthesising the text directly.
	Translate bool `yaml:"translate"`
}

// LanguagesConfig lists the supported languages.
type LanguagesConfig struct {
	// Default is used before a language is chosen. Default: "en".
	Default   string           `yaml:"default"`
	Supported []LanguageConfig `yaml:"supported"`
}

// ArbiterConfig tunes the speech output arbiter.
type ArbiterConfig struct {
	// MinInterval suppresses routine speech closer than this to the last
	// utterance. Default: 1.5s.
	MinInterval time.Duration `yaml:"min_interval"`

	// PassiveVolume is used for background narration. Default: 0.3.
	PassiveVolume float64 `yaml:"passive_volume"`

	// VolumeStep is applied by volume_up and volume_down. Default: 0.1.
	VolumeStep float64 `yaml:"volume_step"`

	// SampleRate of the output device. Default: 22050.
	SampleRate int `yaml:"sample_rate"`
}

// CameraConfig configures the local frame poller.
type CameraConfig struct {
	Enabled bool `yaml:"enabled"`

	// Device is the capture index; Source, when set, is opened instead
	// (a file or stream URL).
	Device int    `yaml:"device"`
	Source string `yaml:"source"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// FrameInterval paces capture. Default: 66ms.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// ReopenAfter consecutive read failures re-opens the device. Default: 5.
	ReopenAfter int `yaml:"reopen_after"`

	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`

	// JPEGQuality for frames sent to remote providers. Default: 85.
	JPEGQuality int `yaml:"jpeg_quality"`
}

// PeripheralConfig configures the sensor unit link.
type PeripheralConfig struct {
	Enabled bool `yaml:"enabled"`

	// ListenAddr. Default: ":5678".
	ListenAddr string `yaml:"listen_addr"`

	// MaxPayloadBytes bounds one framed audio stream. Default: 2 MiB.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	// AudioTimeout bounds the wait for a framed stream. Default: 10s.
	AudioTimeout time.Duration `yaml:"audio_timeout"`

	// SampleRate of peripheral audio. Default: 16000.
	SampleRate int `yaml:"sample_rate"`
}

// WakeWordConfig configures the streaming wake word detector.
type WakeWordConfig struct {
	Enabled bool `yaml:"enabled"`

	// ListenAddr accepts raw microphone streams. Default: ":1234".
	ListenAddr string `yaml:"listen_addr"`

	// ModelPath is an ONNX classifier taking one window of samples.
	ModelPath string `yaml:"model_path"`

	SampleRate int           `yaml:"sample_rate"`
	Threshold  float64       `yaml:"threshold"`
	Cooldown   time.Duration `yaml:"cooldown"`
	Stride     time.Duration `yaml:"stride"`
	Window     time.Duration `yaml:"window"`
	Buffer     time.Duration `yaml:"buffer"`
}

// VoiceConfig configures voice command capture.
type VoiceConfig struct {
	Source VoiceSource `yaml:"source"`

	// MaxAttempts before apologising. Default: 3.
	MaxAttempts int `yaml:"max_attempts"`

	// ListenTimeout bounds one capture. Default: 8s.
	ListenTimeout time.Duration `yaml:"listen_timeout"`
}

// MicrophoneConfig configures the local microphone.
type MicrophoneConfig struct {
	Enabled    bool `yaml:"enabled"`
	SampleRate int  `yaml:"sample_rate"`

	// FrameSize in samples. Default: 320 (20ms at 16 kHz).
	FrameSize int `yaml:"frame_size"`

	SpeechThreshold  float64       `yaml:"speech_threshold"`
	SilenceThreshold float64       `yaml:"silence_threshold"`
	Hangover         time.Duration `yaml:"hangover"`
	MaxDuration      time.Duration `yaml:"max_duration"`
}

// IntentConfig configures the command classifier.
type IntentConfig struct {
	// ClassifierPath stores the embedded examples. Default:
	// "data/intent_classifier.json".
	ClassifierPath string `yaml:"classifier_path"`

	// Index selects where examples are searched. Default: file.
	Index Backend `yaml:"index"`

	// DefaultLabel is returned when classification is impossible. Default: "stop".
	DefaultLabel string `yaml:"default_label"`

	// Timeout bounds one classification. Default: 5s.
	Timeout time.Duration `yaml:"timeout"`

	// RetryInterval is the first delay before training is retried when the
	// embedding service was unreachable at startup. It doubles up to one
	// minute. Default: 2s.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// Examples maps a label to its training phrases. Defaults ship built in.
	Examples map[string][]string `yaml:"examples"`
}

// VisionConfig configures object and depth narration.
type VisionConfig struct {
	Enabled bool `yaml:"enabled"`

	DetectorModel string `yaml:"detector_model"`
	DepthModel    string `yaml:"depth_model"`
	ClassesPath   string `yaml:"classes_path"`

	// InputSize is the square detector input. Default: 640.
	InputSize int `yaml:"input_size"`

	// ConfidenceCutoff drops weaker detections. Default: 0.6.
	ConfidenceCutoff float64 `yaml:"confidence_cutoff"`

	// CloseDepth marks an object close when any relative depth value inside
	// its box is below it. Default: 200.
	CloseDepth float64 `yaml:"close_depth"`

	// DepthInterval is the maximum age of a cached depth map. Default: 2s.
	DepthInterval time.Duration `yaml:"depth_interval"`

	// PassiveInterval paces background narration. Default: 500ms.
	PassiveInterval time.Duration `yaml:"passive_interval"`
}

// ReadingConfig configures text reading.
type ReadingConfig struct {
	// MaxAttempts without text before giving up. Default: 3.
	MaxAttempts int `yaml:"max_attempts"`
}

// ChatConfig configures the conversational assistant.
type ChatConfig struct {
	SystemPrompt string  `yaml:"system_prompt"`
	MaxTurns     int     `yaml:"max_turns"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
}

// LocationConfig configures positioning.
type LocationConfig struct {
	// FallbackLat and FallbackLng are used when positioning fails.
	FallbackLat float64 `yaml:"fallback_lat"`
	FallbackLng float64 `yaml:"fallback_lng"`

	// NearbyRadius in metres. Default: 500.
	NearbyRadius int `yaml:"nearby_radius"`

	// MaxPlaces spoken by hotspots. Default: 5.
	MaxPlaces int `yaml:"max_places"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend     Backend `yaml:"backend"`
	Path        string  `yaml:"path"`
	PostgresDSN string  `yaml:"postgres_dsn"`
}

// GuardianConfig configures the caregiver link.
type GuardianConfig struct {
	Enabled bool `yaml:"enabled"`

	// APIURL is the HTTP root used for tokens and the alert fallback.
	APIURL string `yaml:"api_url"`

	// SocketURL is the websocket endpoint.
	SocketURL string `yaml:"socket_url"`

	// StatusInterval paces device_status messages. Default: 5s.
	StatusInterval time.Duration `yaml:"status_interval"`

	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// KeyboardConfig configures local key control.
type KeyboardConfig struct {
	Enabled bool `yaml:"enabled"`

	// Keys maps a single key to a mode name or "voice".
	Keys map[string]string `yaml:"keys"`
}
