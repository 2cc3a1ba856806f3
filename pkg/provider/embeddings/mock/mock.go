// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/sightwear/sightwear/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
//
// When EmbedFunc is set, every text is embedded with it. Otherwise Embed
// returns EmbedResult and EmbedBatch returns one EmbedResult per text.
type Provider struct {
	mu sync.Mutex

	EmbedFunc   func(text string) []float32
	EmbedResult []float32
	Err         error

	DimensionsValue int
	ModelIDValue    string

	// Texts records every text embedded, across both methods.
	Texts []string
	// Calls counts Embed and EmbedBatch invocations.
	Calls int
}

// Embed records and embeds text.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	if p.Err != nil {
		return nil, p.Err
	}
	return p.embed(text), nil
}

// EmbedBatch records and embeds texts.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.embed(t)
	}
	return out, nil
}

func (p *Provider) embed(text string) []float32 {
	p.Texts = append(p.Texts, text)
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text)
	}
	return p.EmbedResult
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string { return p.ModelIDValue }

// SetErr replaces Err under the lock.
func (p *Provider) SetErr(err error) {
	p.mu.Lock()
	p.Err = err
	p.mu.Unlock()
}

// CallCount returns Calls under the lock.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls
}
