// Package coqui synthesises speech with a Coqui TTS server. Two server flavours
// are supported: the stock TTS server (GET /api/tts) and the XTTS API server
// (POST /tts_to_audio/, which needs a reference speaker).
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sightwear/sightwear/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultTimeout  = 30 * time.Second
	apiTTSEndpoint  = "/api/tts"
	xttsTTSEndpoint = "/tts_to_audio/"
)

// APIMode selects the server flavour.
type APIMode string

const (
	// APIModeStandard targets `tts-server` (GET /api/tts).
	APIModeStandard APIMode = "standard"
	// APIModeXTTS targets xtts-api-server (POST /tts_to_audio/).
	APIModeXTTS APIMode = "xtts"
)

// Option configures a [Provider].
type Option func(*Provider)

// WithAPIMode selects the server flavour. Default: standard.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// WithSpeaker sets the speaker id (standard) or reference wav (XTTS).
func WithSpeaker(id string) Option {
	return func(p *Provider) { p.speaker = id }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider talks to one Coqui server.
type Provider struct {
	serverURL  string
	apiMode    APIMode
	speaker    string
	httpClient *http.Client
}

// New returns a Provider for serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode == APIModeXTTS && p.speaker == "" {
		return nil, errors.New("coqui: XTTS mode requires a speaker")
	}
	return p, nil
}

// Synthesize returns the server's WAV output for text.
func (p *Provider) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("coqui: empty text")
	}
	var (
		req *http.Request
		err error
	)
	if p.apiMode == APIModeXTTS {
		body, _ := json.Marshal(map[string]string{
			"text":        text,
			"speaker_wav": p.speaker,
			"language":    language,
		})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsTTSEndpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		q := url.Values{"text": {text}}
		if p.speaker != "" {
			q.Set("speaker_id", p.speaker)
		}
		if language != "" {
			q.Set("language_id", language)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+q.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: create request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read response: %w", err)
	}
	if len(wav) < 12 || string(wav[:4]) != "RIFF" {
		return nil, errors.New("coqui: response is not a WAV file")
	}
	return wav, nil
}
