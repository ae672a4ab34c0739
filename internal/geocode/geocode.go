// Package geocode resolves free-text place names to coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/emu-entities/internal/debug"
)

// DefaultURL is the ArcGIS World Geocoding Service
const DefaultURL = "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer"

// DefaultTimeout bounds a single lookup
const DefaultTimeout = 10 * time.Second

// Location is the best candidate returned for a query
type Location struct {
	Address   string
	Latitude  float64
	Longitude float64
	Score     float64
}

// Geocoder looks up a place name. It returns nil and no error when nothing matched.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Location, error)
}

// ArcGIS is a client for the findAddressCandidates operation
type ArcGIS struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	debug      bool
}

// Option configures an ArcGIS client
type Option func(*ArcGIS)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(a *ArcGIS) {
		if d > 0 {
			a.httpClient.Timeout = d
		}
	}
}

// WithRate limits lookups to perSecond requests per second; zero or less means unlimited
func WithRate(perSecond float64) Option {
	return func(a *ArcGIS) {
		if perSecond > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithDebug enables request logging
func WithDebug(enabled bool) Option {
	return func(a *ArcGIS) {
		a.debug = enabled
	}
}

// NewArcGIS creates a client for the geocode server at baseURL
func NewArcGIS(baseURL string, opts ...Option) *ArcGIS {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	a := &ArcGIS{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type candidatesResponse struct {
	Candidates []struct {
		Address  string `json:"address"`
		Location struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"location"`
		Score float64 `json:"score"`
	} `json:"candidates"`
	Error *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// Geocode returns the top candidate for query
func (a *ArcGIS) Geocode(ctx context.Context, query string) (*Location, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("SingleLine", query)
	params.Set("f", "json")
	params.Set("maxLocations", "1")
	endpoint := a.baseURL + "/findAddressCandidates?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	debug.DebugOutput(a.debug, "Geocoding %q", query)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read geocode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("geocoder error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result candidatesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal geocode response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("geocoder error %d: %s", result.Error.Code, result.Error.Message)
	}
	if len(result.Candidates) == 0 {
		return nil, nil
	}

	c := result.Candidates[0]
	return &Location{
		Address:   c.Address,
		Latitude:  c.Location.Y,
		Longitude: c.Location.X,
		Score:     c.Score,
	}, nil
}
