// Package google implements geo.Provider with the Google Geolocation,
// Geocoding and Places web services.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sightwear/sightwear/pkg/provider/geo"
)

// Default service roots.
const (
	DefaultGeolocationURL = "https://www.googleapis.com"
	DefaultMapsURL        = "https://maps.googleapis.com"
)

var _ geo.Provider = (*Provider)(nil)

// Provider calls the Google Maps platform with one API key.
type Provider struct {
	apiKey         string
	geolocationURL string
	mapsURL        string
	httpClient     *http.Client
}

// Option configures a [Provider].
type Option func(*Provider)

// WithBaseURLs overrides both service roots.
func WithBaseURLs(geolocation, maps string) Option {
	return func(p *Provider) {
		p.geolocationURL = strings.TrimRight(geolocation, "/")
		p.mapsURL = strings.TrimRight(maps, "/")
	}
}

// WithTimeout bounds every request. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient = &http.Client{Timeout: d} }
}

// New returns a Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("google: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:         apiKey,
		geolocationURL: DefaultGeolocationURL,
		mapsURL:        DefaultMapsURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Locate implements geo.Provider. The estimate relies on the caller's IP.
func (p *Provider) Locate(ctx context.Context) (geo.Position, error) {
	var out struct {
		Location latLng  `json:"location"`
		Accuracy float64 `json:"accuracy"`
	}
	u := p.geolocationURL + "/geolocation/v1/geolocate?" + url.Values{"key": {p.apiKey}}.Encode()
	if err := p.do(ctx, http.MethodPost, u, []byte(`{"considerIp":true}`), &out); err != nil {
		return geo.Position{}, err
	}
	return geo.Position{Lat: out.Location.Lat, Lng: out.Location.Lng, Accuracy: out.Accuracy}, nil
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location latLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	ErrorMessage string `json:"error_message"`
}

// Reverse implements geo.Provider.
func (p *Provider) Reverse(ctx context.Context, pos geo.Position) (string, error) {
	var out geocodeResponse
	q := url.Values{"latlng": {pos.String()}, "key": {p.apiKey}}
	if err := p.do(ctx, http.MethodGet, p.mapsURL+"/maps/api/geocode/json?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	if err := statusErr(out.Status, out.ErrorMessage); err != nil {
		return "", err
	}
	return out.Results[0].FormattedAddress, nil
}

// Geocode implements geo.Provider.
func (p *Provider) Geocode(ctx context.Context, query string) (geo.Place, error) {
	var out geocodeResponse
	q := url.Values{"address": {query}, "key": {p.apiKey}}
	if err := p.do(ctx, http.MethodGet, p.mapsURL+"/maps/api/geocode/json?"+q.Encode(), nil, &out); err != nil {
		return geo.Place{}, err
	}
	if err := statusErr(out.Status, out.ErrorMessage); err != nil {
		return geo.Place{}, err
	}
	r := out.Results[0]
	return geo.Place{
		Name:     query,
		Address:  r.FormattedAddress,
		Position: geo.Position{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
	}, nil
}

// Nearby implements geo.Provider.
func (p *Provider) Nearby(ctx context.Context, pos geo.Position, radius int) ([]geo.Place, error) {
	var out struct {
		Status  string `json:"status"`
		Results []struct {
			Name     string `json:"name"`
			Vicinity string `json:"vicinity"`
			Geometry struct {
				Location latLng `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
		ErrorMessage string `json:"error_message"`
	}
	q := url.Values{"location": {pos.String()}, "radius": {strconv.Itoa(radius)}, "key": {p.apiKey}}
	if err := p.do(ctx, http.MethodGet, p.mapsURL+"/maps/api/place/nearbysearch/json?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Status == "ZERO_RESULTS" {
		return nil, nil
	}
	if err := statusErr(out.Status, out.ErrorMessage); err != nil {
		return nil, err
	}
	places := make([]geo.Place, 0, len(out.Results))
	for _, r := range out.Results {
		places = append(places, geo.Place{
			Name:     r.Name,
			Address:  r.Vicinity,
			Position: geo.Position{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		})
	}
	return places, nil
}

func statusErr(status, msg string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS":
		return geo.ErrNotFound
	default:
		return fmt.Errorf("google: status %s: %s", status, msg)
	}
}

func (p *Provider) do(ctx context.Context, method, u string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("google: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("google: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("google: decode response: %w", err)
	}
	return nil
}
