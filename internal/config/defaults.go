package config

import "time"

// DefaultIntentExamples are the training phrases shipped with the device,
// keyed by command label.
var DefaultIntentExamples = map[string][]string{
	"reading":           {"can you read this", "read the text on the screen", "what does it say", "read this label for me"},
	"stop":              {"stop everything", "pause the system", "turn off the assistant", "halt all processes"},
	"start":             {"start detecting objects", "what's in front of me", "what's near me", "look around", "identify the things around"},
	"count":             {"how much money is here", "count the cash", "what amount do I have", "tell me how much this is"},
	"reset":             {"change language", "reset the system", "start setup again", "switch to another language"},
	"current_location":  {"where am I", "what's my current location", "tell me where I am", "give me my location"},
	"navigate":          {"take me somewhere", "I want directions", "how do I get to the train station", "navigate to the pharmacy"},
	"bookmark_location": {"save this location", "remember where I am", "bookmark this place", "mark this spot"},
	"save_contact":      {"save a phone number", "add a new contact info", "remember this phone number", "store a contact for me"},
	"send_money":        {"send money to Sarah", "transfer cash to my friend", "make a mobile payment", "pay someone now"},
	"time":              {"what time is it", "tell me the current time", "what's the time now", "give me the time"},
	"hotspots":          {"find nearby restaurants", "show places around me", "what's close by", "list nearby hotspots"},
	"chat":              {"what can you do", "how are you today", "tell me something interesting", "let's chat", "can you help me"},
	"shutdown":          {"shut down the device", "turn off the system", "power off", "shutdown now"},
	"get_contact":       {"get a phone number", "find contact info", "show me my contacts", "retrieve a phone number"},
	"emergency":         {"help me", "this is an emergency", "call for help", "alert my guardian"},
	"describe_scene":    {"describe the scene", "what does the room look like", "tell me what you see", "describe my surroundings"},
	"get_device_id":     {"what is my device id", "tell me the device number", "read my device identifier"},
	"volume_up":         {"turn the volume up", "speak louder", "increase the volume", "I can't hear you"},
	"volume_down":       {"turn the volume down", "speak softer", "decrease the volume", "too loud"},
}

// DefaultKeys is the local keyboard map.
var DefaultKeys = map[string]string{
	"o": "active_vision",
	"s": "idle",
	"r": "reading",
	"c": "count_currency",
	"l": "reset_language",
	"v": "voice",
	"t": "time",
	"e": "emergency",
	"d": "describe_scene",
	"i": "get_device_id",
	"+": "volume_up",
	"-": "volume_down",
	"q": "shutdown",
}

// DefaultChatPrompt frames the conversational assistant.
const DefaultChatPrompt = "You are a helpful assistant worn by a visually impaired person. " +
	"Your answers are spoken aloud: keep them short, avoid lists, emojis and markdown."

func setDur(d *time.Duration, v time.Duration) {
	if *d <= 0 {
		*d = v
	}
}

func setInt(i *int, v int) {
	if *i <= 0 {
		*i = v
	}
}

func setFloat(f *float64, v float64) {
	if *f <= 0 {
		*f = v
	}
}

func setStr(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

// ApplyDefaults fills every unset tunable of cfg with its documented default.
// It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	setInt(&cfg.Server.LogFile.MaxSizeMB, 20)
	setInt(&cfg.Server.LogFile.MaxBackups, 3)
	setInt(&cfg.Server.LogFile.MaxAgeDays, 14)

	setDur(&cfg.Device.TickInterval, time.Second/15)

	setStr(&cfg.Languages.Default, "en")
	if len(cfg.Languages.Supported) == 0 {
		cfg.Languages.Supported = []LanguageConfig{
			{Code: "en", Name: "English"},
			{Code: "tw", Name: "Twi", Aliases: []string{"twi", "asante", "akan"}, Translate: true},
		}
	}

	setDur(&cfg.Arbiter.MinInterval, 1500*time.Millisecond)
	setFloat(&cfg.Arbiter.PassiveVolume, 0.3)
	setFloat(&cfg.Arbiter.VolumeStep, 0.1)
	setInt(&cfg.Arbiter.SampleRate, 22050)

	setInt(&cfg.Camera.Width, 640)
	setInt(&cfg.Camera.Height, 480)
	setDur(&cfg.Camera.FrameInterval, time.Second/15)
	setInt(&cfg.Camera.ReopenAfter, 5)
	setDur(&cfg.Camera.BackoffInitial, 500*time.Millisecond)
	setDur(&cfg.Camera.BackoffMax, 10*time.Second)
	setInt(&cfg.Camera.JPEGQuality, 85)

	setStr(&cfg.Peripheral.ListenAddr, ":5678")
	setInt(&cfg.Peripheral.MaxPayloadBytes, 2<<20)
	setDur(&cfg.Peripheral.AudioTimeout, 10*time.Second)
	setInt(&cfg.Peripheral.SampleRate, 16000)

	setStr(&cfg.WakeWord.ListenAddr, ":1234")
	setInt(&cfg.WakeWord.SampleRate, 16000)
	setFloat(&cfg.WakeWord.Threshold, 0.95)
	setDur(&cfg.WakeWord.Cooldown, 3*time.Second)
	setDur(&cfg.WakeWord.Stride, 500*time.Millisecond)
	setDur(&cfg.WakeWord.Window, 2*time.Second)
	setDur(&cfg.WakeWord.Buffer, 5*time.Second)

	if cfg.Voice.Source == "" {
		cfg.Voice.Source = VoiceAuto
	}
	setInt(&cfg.Voice.MaxAttempts, 3)
	setDur(&cfg.Voice.ListenTimeout, 8*time.Second)

	setInt(&cfg.Microphone.SampleRate, 16000)
	setInt(&cfg.Microphone.FrameSize, 320)
	setFloat(&cfg.Microphone.SpeechThreshold, 0.015)
	setFloat(&cfg.Microphone.SilenceThreshold, 0.01)
	setDur(&cfg.Microphone.Hangover, 600*time.Millisecond)
	setDur(&cfg.Microphone.MaxDuration, 10*time.Second)

	setStr(&cfg.Intent.ClassifierPath, "data/intent_classifier.json")
	if cfg.Intent.Index == "" {
		cfg.Intent.Index = BackendFile
	}
	setStr(&cfg.Intent.DefaultLabel, "stop")
	setDur(&cfg.Intent.Timeout, 5*time.Second)
	setDur(&cfg.Intent.RetryInterval, 2*time.Second)
	if len(cfg.Intent.Examples) == 0 {
		cfg.Intent.Examples = make(map[string][]string, len(DefaultIntentExamples))
		for label, phrases := range DefaultIntentExamples {
			cfg.Intent.Examples[label] = append([]string(nil), phrases...)
		}
	}

	setInt(&cfg.Vision.InputSize, 640)
	setFloat(&cfg.Vision.ConfidenceCutoff, 0.6)
	setFloat(&cfg.Vision.CloseDepth, 200)
	setDur(&cfg.Vision.DepthInterval, 2*time.Second)
	setDur(&cfg.Vision.PassiveInterval, 500*time.Millisecond)

	setInt(&cfg.Reading.MaxAttempts, 3)

	setStr(&cfg.Chat.SystemPrompt, DefaultChatPrompt)
	setInt(&cfg.Chat.MaxTurns, 10)
	setInt(&cfg.Chat.MaxTokens, 200)
	setFloat(&cfg.Chat.Temperature, 0.5)

	setInt(&cfg.Location.NearbyRadius, 500)
	setInt(&cfg.Location.MaxPlaces, 5)

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendFile
	}
	setStr(&cfg.Store.Path, "data/store.yaml")

	setDur(&cfg.Guardian.StatusInterval, 5*time.Second)
	setDur(&cfg.Guardian.BackoffInitial, time.Second)
	setDur(&cfg.Guardian.BackoffMax, 30*time.Second)

	if len(cfg.Keyboard.Keys) == 0 {
		cfg.Keyboard.Keys = make(map[string]string, len(DefaultKeys))
		for k, v := range DefaultKeys {
			cfg.Keyboard.Keys[k] = v
		}
	}
}
