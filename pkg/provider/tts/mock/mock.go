// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/sightwear/sightwear/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text     string
	Language string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// WAV is returned by every successful Synthesize call.
	WAV []byte

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// SynthesizeFunc, if set, replaces WAV and Err.
	SynthesizeFunc func(ctx context.Context, text, language string) ([]byte, error)

	// SynthesizeCalls records every call in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured response.
func (p *Provider) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Language: language})
	fn, wav, err := p.SynthesizeFunc, p.WAV, p.Err
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, text, language)
	}
	return wav, err
}

// Texts returns the text of every recorded call.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}
