// Package detector implements currency.Provider against a banknote detection
// server that accepts an uploaded image at POST /detect/ and answers
// {"detections":[{"class":"10 cedis","confidence":0.91}]}.
package detector

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

	"github.com/sightwear/sightwear/pkg/provider/currency"
)

var _ currency.Provider = (*Provider)(nil)

// Provider posts frames to a detection server.
type Provider struct {
	url        string
	minConf    float64
	httpClient *http.Client
}

// Option configures a [Provider].
type Option func(*Provider)

// WithTimeout bounds every request. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient = &http.Client{Timeout: d} }
}

// WithMinConfidence drops detections below c when the server reports a
// confidence.
func WithMinConfidence(c float64) Option {
	return func(p *Provider) { p.minConf = c }
}

// New returns a Provider posting to url (e.g. "http://localhost:8000/detect/").
func New(url string, opts ...Option) (*Provider, error) {
	if url == "" {
		return nil, errors.New("detector: url must not be empty")
	}
	p := &Provider{url: url, httpClient: &http.Client{Timeout: 10 * time.Second}}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type detection struct {
	Class      string   `json:"class"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Count implements currency.Provider.
func (p *Provider) Count(ctx context.Context, jpeg []byte) (currency.Result, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", "currency.jpg")
	if err != nil {
		return currency.Result{}, fmt.Errorf("detector: create form file: %w", err)
	}
	if _, err := fw.Write(jpeg); err != nil {
		return currency.Result{}, fmt.Errorf("detector: write image: %w", err)
	}
	if err := w.Close(); err != nil {
		return currency.Result{}, fmt.Errorf("detector: close form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &body)
	if err != nil {
		return currency.Result{}, fmt.Errorf("detector: new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return currency.Result{}, fmt.Errorf("detector: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return currency.Result{}, fmt.Errorf("detector: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Detections []detection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return currency.Result{}, fmt.Errorf("detector: decode response: %w", err)
	}
	classes := make([]string, 0, len(out.Detections))
	for _, d := range out.Detections {
		if d.Confidence != nil && *d.Confidence < p.minConf {
			continue
		}
		classes = append(classes, d.Class)
	}
	return currency.Tally(classes), nil
}
