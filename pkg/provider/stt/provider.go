// Package stt defines the speech-to-text boundary. A [Provider] turns one
// captured utterance into text; it never streams.
package stt

import (
	"context"
	"errors"

	"github.com/sightwear/sightwear/pkg/audio"
)

// ErrEmptyAudio is returned when a provider is handed a clip with no samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Provider transcribes a single clip. language is an ISO 639-1 code ("en",
// "tw"); an empty string lets the provider use its configured default.
// Silence or unintelligible speech yields "" and a nil error.
type Provider interface {
	Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error)
}
