// Package mock provides a test double for ocr.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/sightwear/sightwear/pkg/provider/ocr"
)

var _ ocr.Provider = (*Provider)(nil)

// Provider returns successive Results (the last one repeats), or Text when
// Results is empty.
type Provider struct {
	mu      sync.Mutex
	Results []string
	Text    string
	Err     error
	calls   int
}

// Read implements ocr.Provider.
func (p *Provider) Read(_ context.Context, _ []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.Err != nil {
		return "", p.Err
	}
	if n := len(p.Results); n > 0 {
		i := p.calls - 1
		if i >= n {
			i = n - 1
		}
		return p.Results[i], nil
	}
	return p.Text, nil
}

// CallCount returns the number of Read calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
