// Package gemini implements describe.Provider with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/sightwear/sightwear/pkg/provider/describe"
)

var _ describe.Provider = (*Provider)(nil)

// Provider sends the image inline with the prompt to GenerateContent.
type Provider struct {
	client *genai.Client
	model  string
	cfg    *genai.GenerateContentConfig
}

type config struct {
	baseURL   string
	timeout   time.Duration
	maxTokens int32
}

// Option configures a [Provider].
type Option func(*config)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// WithTimeout bounds every request. Default: 20s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxTokens caps the description length. Default: 256.
func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = int32(n) }
}

// New returns a Provider for model (e.g. "gemini-2.0-flash").
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model must not be empty")
	}
	cfg := &config{timeout: 20 * time.Second, maxTokens: 256}
	for _, o := range opts {
		o(cfg)
	}
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.timeout},
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	temp := float32(0.2)
	return &Provider{
		client: client,
		model:  model,
		cfg: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(describe.Instruction, genai.RoleUser),
			Temperature:       &temp,
			MaxOutputTokens:   cfg.maxTokens,
		},
	}, nil
}

// Describe implements describe.Provider.
func (p *Provider) Describe(ctx context.Context, jpeg []byte, prompt string) (string, error) {
	if len(jpeg) == 0 {
		return "", errors.New("gemini: empty image")
	}
	if prompt == "" {
		prompt = describe.DefaultPrompt
	}
	parts := []*genai.Part{
		{Text: prompt},
		{InlineData: &genai.Blob{Data: jpeg, MIMEType: "image/jpeg"}},
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: parts}}, p.cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := describe.Clean(resp.Text())
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}
