package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sightwear/sightwear/pkg/provider/currency"
	"github.com/sightwear/sightwear/pkg/provider/describe"
	"github.com/sightwear/sightwear/pkg/provider/embeddings"
	"github.com/sightwear/sightwear/pkg/provider/geo"
	"github.com/sightwear/sightwear/pkg/provider/llm"
	"github.com/sightwear/sightwear/pkg/provider/ocr"
	"github.com/sightwear/sightwear/pkg/provider/stt"
	"github.com/sightwear/sightwear/pkg/provider/translate"
	"github.com/sightwear/sightwear/pkg/provider/tts"
	"github.com/sightwear/sightwear/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by [Factories.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration block.
type Factory[T any] func(ProviderEntry) (T, error)

// Factories maps provider names to constructors for one provider kind.
// The zero value is ready to use and safe for concurrent use.
type Factories[T any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]Factory[T]
}

// Register adds factory under name. Registering a name twice overwrites
// the previous factory.
func (f *Factories[T]) Register(name string, factory Factory[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = make(map[string]Factory[T])
	}
	f.m[name] = factory
}

// Create instantiates the provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered.
func (f *Factories[T]) Create(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	factory, ok := f.m[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered names in sorted order.
func (f *Factories[T]) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.m))
	for n := range f.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Registry holds one [Factories] per provider kind.
type Registry struct {
	STT        Factories[stt.Provider]
	TTS        Factories[tts.Provider]
	Translate  Factories[translate.Provider]
	Embeddings Factories[embeddings.Provider]
	LLM        Factories[llm.Provider]
	Describe   Factories[describe.Provider]
	OCR        Factories[ocr.Provider]
	Currency   Factories[currency.Provider]
	Geo        Factories[geo.Provider]
	VAD        Factories[vad.Engine]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	r := &Registry{}
	r.STT.kind = "stt"
	r.TTS.kind = "tts"
	r.Translate.kind = "translate"
	r.Embeddings.kind = "embeddings"
	r.LLM.kind = "llm"
	r.Describe.kind = "describe"
	r.OCR.kind = "ocr"
	r.Currency.kind = "currency"
	r.Geo.kind = "geo"
	r.VAD.kind = "vad"
	return r
}

// Option returns entry.Options[key] as a string, or def.
func (e ProviderEntry) Option(key, def string) string {
	if v, ok := e.Options[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
		return fmt.Sprint(v)
	}
	return def
}

// IntOption returns entry.Options[key] as an int, or def.
func (e ProviderEntry) IntOption(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
