// Package mock provides a test double for describe.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/sightwear/sightwear/pkg/provider/describe"
)

var _ describe.Provider = (*Provider)(nil)

// Call records one Describe invocation.
type Call struct {
	Image  []byte
	Prompt string
}

// Provider returns Text or Err and records every call.
type Provider struct {
	mu    sync.Mutex
	Text  string
	Err   error
	Calls []Call
}

// Describe implements describe.Provider.
func (p *Provider) Describe(_ context.Context, jpeg []byte, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, Call{Image: jpeg, Prompt: prompt})
	if p.Err != nil {
		return "", p.Err
	}
	return p.Text, nil
}

// CallCount returns the number of recorded calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
