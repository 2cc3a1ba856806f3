// Package mock provides a test double for currency.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/sightwear/sightwear/pkg/provider/currency"
)

var _ currency.Provider = (*Provider)(nil)

// Provider tallies Classes or returns Err.
type Provider struct {
	mu      sync.Mutex
	Classes []string
	Err     error
	calls   int
}

// Count implements currency.Provider.
func (p *Provider) Count(_ context.Context, _ []byte) (currency.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.Err != nil {
		return currency.Result{}, p.Err
	}
	return currency.Tally(p.Classes), nil
}

// CallCount returns the number of Count calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
