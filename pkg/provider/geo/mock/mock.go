// Package mock provides a test double for geo.Provider.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/sightwear/sightwear/pkg/provider/geo"
)

var _ geo.Provider = (*Provider)(nil)

// Provider serves canned answers. Places is keyed by lower-cased query.
type Provider struct {
	mu sync.Mutex

	Position geo.Position
	Address  string
	Places   map[string]geo.Place
	Near     []geo.Place
	Err      error

	Queries []string
}

// Locate implements geo.Provider.
func (p *Provider) Locate(context.Context) (geo.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Position, p.Err
}

// Reverse implements geo.Provider.
func (p *Provider) Reverse(context.Context, geo.Position) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	return p.Address, nil
}

// Geocode implements geo.Provider.
func (p *Provider) Geocode(_ context.Context, query string) (geo.Place, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Queries = append(p.Queries, query)
	if p.Err != nil {
		return geo.Place{}, p.Err
	}
	pl, ok := p.Places[strings.ToLower(query)]
	if !ok {
		return geo.Place{}, geo.ErrNotFound
	}
	return pl, nil
}

// Nearby implements geo.Provider.
func (p *Provider) Nearby(context.Context, geo.Position, int) ([]geo.Place, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Near, p.Err
}
