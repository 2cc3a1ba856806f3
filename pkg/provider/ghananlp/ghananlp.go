// Package ghananlp wraps the GhanaNLP translation API, which provides speech
// recognition, speech synthesis and machine translation for Ghanaian
// languages such as Twi. One [Client] satisfies stt.Provider, tts.Provider and
// translate.Provider.
package ghananlp

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

	"github.com/sightwear/sightwear/pkg/audio"
	"github.com/sightwear/sightwear/pkg/provider/stt"
	"github.com/sightwear/sightwear/pkg/provider/translate"
	"github.com/sightwear/sightwear/pkg/provider/tts"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://translation-api.ghananlp.org"

var (
	_ stt.Provider       = (*Client)(nil)
	_ tts.Provider       = (*Client)(nil)
	_ translate.Provider = (*Client)(nil)
)

// defaultSpeakers maps a language to the API's default voice.
var defaultSpeakers = map[string]string{
	"tw": "twi_speaker_4",
	"ee": "ewe_speaker_3",
	"ki": "kikuyu_speaker_1",
}

// Client calls the GhanaNLP API with a subscription key.
type Client struct {
	baseURL    string
	apiKey     string
	speakers   map[string]string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL overrides [DefaultBaseURL].
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithSpeaker sets the voice used for a language.
func WithSpeaker(language, speakerID string) Option {
	return func(c *Client) { c.speakers[language] = speakerID }
}

// New returns a Client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("ghananlp: apiKey must not be empty")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		speakers:   make(map[string]string, len(defaultSpeakers)),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for k, v := range defaultSpeakers {
		c.speakers[k] = v
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe posts clip as WAV to /asr/v1/transcribe.
func (c *Client) Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	if clip.Empty() {
		return "", stt.ErrEmptyAudio
	}
	if language == "" {
		language = "tw"
	}
	wav, err := audio.EncodeWAV(clip)
	if err != nil {
		return "", fmt.Errorf("ghananlp: %w", err)
	}
	endpoint := c.baseURL + "/asr/v1/transcribe?" + url.Values{"language": {language}}.Encode()
	body, err := c.do(ctx, endpoint, "audio/wav", wav)
	if err != nil {
		return "", fmt.Errorf("ghananlp: transcribe: %w", err)
	}
	return unquote(body), nil
}

// Synthesize posts text to /tts/v1/synthesize and returns the WAV body.
func (c *Client) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if language == "" {
		language = "tw"
	}
	speaker, ok := c.speakers[language]
	if !ok {
		return nil, fmt.Errorf("ghananlp: no speaker for language %q", language)
	}
	payload, _ := json.Marshal(map[string]string{
		"text":       text,
		"language":   language,
		"speaker_id": speaker,
	})
	wav, err := c.do(ctx, c.baseURL+"/tts/v1/synthesize", "application/json", payload)
	if err != nil {
		return nil, fmt.Errorf("ghananlp: synthesize: %w", err)
	}
	return wav, nil
}

// Translate posts to /v1/translate with a "from-to" language pair.
func (c *Client) Translate(ctx context.Context, text, from, to string) (string, error) {
	if from == to {
		return text, nil
	}
	payload, _ := json.Marshal(map[string]string{"in": text, "lang": from + "-" + to})
	body, err := c.do(ctx, c.baseURL+"/v1/translate", "application/json", payload)
	if err != nil {
		return "", fmt.Errorf("ghananlp: translate: %w", err)
	}
	return unquote(body), nil
}

func (c *Client) do(ctx context.Context, endpoint, contentType string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message)
	}
	return body, nil
}

// unquote handles the API's habit of returning text as a JSON string.
func unquote(b []byte) string {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(b))
}
