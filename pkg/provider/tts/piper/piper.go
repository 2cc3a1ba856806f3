// Package piper synthesises speech with a Piper HTTP server
// (python -m piper.http_server), which answers POST / with a WAV body.
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sightwear/sightwear/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Provider talks to one Piper server. Piper voices are single-language, so
// the language argument only selects a voice when one is mapped for it.
type Provider struct {
	serverURL  string
	voices     map[string]string
	httpClient *http.Client
}

// New returns a Provider. voices maps a language code to a Piper voice name;
// it may be nil.
func New(serverURL string, voices map[string]string) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	return &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		voices:     voices,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Synthesize returns the WAV rendering of text.
func (p *Provider) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	payload := map[string]string{"text": text}
	if v, ok := p.voices[language]; ok {
		payload["voice"] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("piper: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("piper: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piper: server returned status %d", resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: read response: %w", err)
	}
	return wav, nil
}
