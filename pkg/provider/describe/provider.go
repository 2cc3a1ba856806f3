// Package describe defines the scene description boundary: an image goes in,
// a short spoken-friendly description comes out.
package describe

import (
	"context"
	"regexp"
	"strings"
)

// DefaultPrompt is used when the caller passes an empty prompt.
const DefaultPrompt = "Describe the scene in this image."

// Instruction frames every request for a listener who cannot see the image.
const Instruction = "You are an assistant for a visually impaired person. " +
	"The user cannot see; images are sent from a wearable camera. " +
	"Describe them clearly, avoid emojis and markdown, and use simple, concise language."

// Provider describes a JPEG image.
type Provider interface {
	Describe(ctx context.Context, jpeg []byte, prompt string) (string, error)
}

var (
	unspeakable = regexp.MustCompile(`[^\p{L}\p{N}\s.,;:!?'"()%-]`)
	repeatedPun = regexp.MustCompile(`([.!?,])[.!?,]+`)
	spaces      = regexp.MustCompile(`\s+`)
	spaceBefore = regexp.MustCompile(`\s+([.,;:!?])`)
)

// Clean strips emojis, markdown and repeated punctuation so the text reads
// well through a speech synthesiser.
func Clean(text string) string {
	text = strings.NewReplacer("**", "", "__", "", "`", "", "#", "").Replace(text)
	text = unspeakable.ReplaceAllString(text, " ")
	text = repeatedPun.ReplaceAllString(text, "$1")
	text = spaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaceBefore.ReplaceAllString(text, "$1"))
}
