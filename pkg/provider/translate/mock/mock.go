// Package mock provides a test double for the translate.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/sightwear/sightwear/pkg/provider/translate"
)

var _ translate.Provider = (*Provider)(nil)

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	Text, From, To string
}

// Provider is a mock implementation of translate.Provider. Without Err, it
// returns Prefix + text.
type Provider struct {
	mu sync.Mutex

	Prefix string
	Err    error

	TranslateCalls []TranslateCall
}

// Translate records the call.
func (p *Provider) Translate(_ context.Context, text, from, to string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Text: text, From: from, To: to})
	if p.Err != nil {
		return "", p.Err
	}
	return p.Prefix + text, nil
}
