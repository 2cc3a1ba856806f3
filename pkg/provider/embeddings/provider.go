// Package embeddings defines the text embedding boundary used by the intent
// resolver to place spoken commands in vector space.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider maps text to dense vectors. Every vector from one Provider has the
// same length, and vectors from different models must not be compared.
type Provider interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input, in input order. On error no
	// partial result is returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length, or 0 if not yet known.
	Dimensions() int

	// ModelID names the embedding model. Persisted classifiers are keyed by it.
	ModelID() string
}
