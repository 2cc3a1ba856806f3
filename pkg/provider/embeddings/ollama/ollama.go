// Package ollama embeds text with a local Ollama server through the official
// Ollama API client.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/sightwear/sightwear/pkg/provider/embeddings"
)

// DefaultBaseURL is the standard local Ollama address.
const DefaultBaseURL = "http://localhost:11434"

var _ embeddings.Provider = (*Provider)(nil)

// Provider calls POST /api/embed.
type Provider struct {
	client *api.Client
	model  string

	mu         sync.Mutex
	dimensions int
}

type config struct {
	timeout    time.Duration
	dimensions int
}

// Option configures a [Provider].
type Option func(*config)

// WithTimeout bounds every request. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithDimensions fixes the vector length instead of learning it from the first
// response.
func WithDimensions(n int) Option {
	return func(c *config) { c.dimensions = n }
}

// New returns a Provider for model on the server at baseURL.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: parse base url: %w", err)
	}
	cfg := &config{timeout: 30 * time.Second}
	for _, o := range opts {
		o(cfg)
	}
	dims := cfg.dimensions
	if dims == 0 {
		dims = knownDimensions(model)
	}
	return &Provider{
		client:     api.NewClient(u, &http.Client{Timeout: cfg.timeout}),
		model:      model,
		dimensions: dims,
	}, nil
}

// Embed embeds one text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: expected %d vectors, got %d", len(texts), len(resp.Embeddings))
	}
	p.mu.Lock()
	if p.dimensions == 0 {
		p.dimensions = len(resp.Embeddings[0])
	}
	p.mu.Unlock()
	return resp.Embeddings, nil
}

// Dimensions returns the vector length, or 0 before the first response for
// models it does not know.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dimensions
}

// ModelID returns the model name.
func (p *Provider) ModelID() string { return p.model }

// Ping checks that the server is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama embeddings: heartbeat: %w", err)
	}
	return nil
}

func knownDimensions(model string) int {
	switch lower := strings.ToLower(model); {
	case strings.Contains(lower, "granite-embedding:30m"):
		return 384
	case strings.Contains(lower, "granite-embedding"):
		return 768
	case strings.Contains(lower, "nomic-embed-text"):
		return 768
	case strings.Contains(lower, "mxbai-embed-large"):
		return 1024
	case strings.Contains(lower, "all-minilm"):
		return 384
	default:
		return 0
	}
}
