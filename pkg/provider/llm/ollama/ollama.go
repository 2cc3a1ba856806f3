// Package ollama implements llm.Provider against a local Ollama server using
// its native chat endpoint.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/sightwear/sightwear/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider calls POST /api/chat with streaming disabled.
type Provider struct {
	client *api.Client
	model  string
}

type config struct {
	timeout time.Duration
}

// Option configures a [Provider].
type Option func(*config)

// WithTimeout bounds every request. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New returns a Provider for model served at baseURL
// (e.g. "http://localhost:11434").
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ollama: invalid base URL %q", baseURL)
	}
	cfg := &config{timeout: 60 * time.Second}
	for _, o := range opts {
		o(cfg)
	}
	return &Provider{
		client: api.NewClient(u, &http.Client{Timeout: cfg.timeout}),
		model:  model,
	}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (string, error) {
	msgs := make([]api.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, api.Message{Role: llm.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}
	options := map[string]any{}
	if req.Temperature != 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	stream := false
	var sb strings.Builder
	err := p.client.Chat(ctx, &api.ChatRequest{
		Model:    p.model,
		Messages: msgs,
		Stream:   &stream,
		Options:  options,
	}, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama: chat: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
