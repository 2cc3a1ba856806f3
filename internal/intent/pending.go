package intent

import (
	"context"
	"sync"

	"github.com/sightwear/sightwear/internal/mode"
)

// Pending is an [Index] whose backing index arrives after startup, once the
// examples could be embedded. Until [Pending.Set] is called every query
// fails with [ErrNoTrainingData], so a [Resolver] answers its default label.
type Pending struct {
	mu    sync.RWMutex
	index Index
}

var _ Index = (*Pending)(nil)

// Set installs the trained index.
func (p *Pending) Set(idx Index) {
	p.mu.Lock()
	p.index = idx
	p.mu.Unlock()
}

// Ready reports whether an index has been installed.
func (p *Pending) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index != nil
}

// Nearest implements [Index].
func (p *Pending) Nearest(ctx context.Context, vec []float32) (mode.Label, float64, error) {
	p.mu.RLock()
	idx := p.index
	p.mu.RUnlock()
	if idx == nil {
		return "", 0, ErrNoTrainingData
	}
	return idx.Nearest(ctx, vec)
}
