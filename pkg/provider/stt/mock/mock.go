// Package mock provides a test double for the stt.Provider interface.
//
// Results are consumed in order; once exhausted, Text is returned.
package mock

import (
	"context"
	"sync"

	"github.com/sightwear/sightwear/pkg/audio"
	"github.com/sightwear/sightwear/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Clip     audio.Clip
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned one per call, in order.
	Results []string

	// Text is returned once Results is exhausted.
	Text string

	// Err, if non-nil, is returned by every call.
	Err error

	// TranscribeCalls records every call in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next configured result.
func (p *Provider) Transcribe(_ context.Context, clip audio.Clip, language string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Clip: clip, Language: language})
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Results) > 0 {
		r := p.Results[0]
		p.Results = p.Results[1:]
		return r, nil
	}
	return p.Text, nil
}

// CallCount returns the number of Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}
