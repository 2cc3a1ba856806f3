// Package translate defines the machine translation boundary used to speak
// English prompts in the user's chosen language.
package translate

import "context"

// Provider translates text between ISO 639-1 languages.
type Provider interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}
