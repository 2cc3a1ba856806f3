// Package tts defines the text-to-speech boundary. A [Provider] renders one
// utterance to a complete WAV clip that the playback device can decode.
package tts

import "context"

// Provider synthesises text spoken in language (ISO 639-1, "en", "tw").
// The returned bytes are a RIFF/WAVE file.
type Provider interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}
