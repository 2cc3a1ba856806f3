// Package ocrspace implements ocr.Provider with the OCR.space parse API.
package ocrspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sightwear/sightwear/pkg/provider/ocr"
)

// DefaultURL is the public parse endpoint.
const DefaultURL = "https://api.ocr.space/parse/image"

var _ ocr.Provider = (*Provider)(nil)

// Provider uploads the image as a multipart form.
type Provider struct {
	url        string
	apiKey     string
	language   string
	httpClient *http.Client
}

// Option configures a [Provider].
type Option func(*Provider)

// WithURL overrides [DefaultURL].
func WithURL(u string) Option {
	return func(p *Provider) { p.url = u }
}

// WithLanguage sets the OCR language code. Default: "eng".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds every request. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient = &http.Client{Timeout: d} }
}

// New returns a Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("ocrspace: apiKey must not be empty")
	}
	p := &Provider{
		url:        DefaultURL,
		apiKey:     apiKey,
		language:   "eng",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type response struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool `json:"IsErroredOnProcessing"`
	// ErrorMessage is a string or a list of strings depending on the failure.
	ErrorMessage json.RawMessage `json:"ErrorMessage"`
}

// Read implements ocr.Provider.
func (p *Provider) Read(ctx context.Context, jpeg []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"apikey":            p.apiKey,
		"language":          p.language,
		"isOverlayRequired": "false",
	} {
		if err := w.WriteField(k, v); err != nil {
			return "", fmt.Errorf("ocrspace: write field: %w", err)
		}
	}
	fw, err := w.CreateFormFile("filename", "frame.jpg")
	if err != nil {
		return "", fmt.Errorf("ocrspace: create form file: %w", err)
	}
	if _, err := fw.Write(jpeg); err != nil {
		return "", fmt.Errorf("ocrspace: write image: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("ocrspace: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &body)
	if err != nil {
		return "", fmt.Errorf("ocrspace: new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocrspace: request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("ocrspace: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocrspace: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("ocrspace: decode response: %w", err)
	}
	if out.IsErroredOnProcessing {
		return "", fmt.Errorf("ocrspace: processing failed: %s", out.ErrorMessage)
	}
	if len(out.ParsedResults) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.ParsedResults[0].ParsedText), nil
}
