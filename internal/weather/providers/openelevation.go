package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/i474232898/crop-prediction/internal/weather"
)

// DefaultOpenElevationURL is the public Open-Elevation lookup endpoint.
const DefaultOpenElevationURL = "https://api.open-elevation.com/api/v1/lookup"

// OpenElevationProvider implements weather.ElevationProvider for Open-Elevation.
type OpenElevationProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenElevationProvider(client *http.Client, baseURL string, backoff BackoffConfig) *OpenElevationProvider {
	if baseURL == "" {
		baseURL = DefaultOpenElevationURL
	}
	return &OpenElevationProvider{
		name:    "openelevation",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newBreaker("openelevation"),
	}
}

func (p *OpenElevationProvider) Name() string {
	return p.name
}

func (p *OpenElevationProvider) FetchElevation(ctx context.Context, c weather.Coordinate) (float64, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("locations", c.String())

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Latitude  float64  `json:"latitude"`
			Longitude float64  `json:"longitude"`
			Elevation *float64 `json:"elevation"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode elevation response: %w", err)
	}
	if len(payload.Results) == 0 {
		return 0, fmt.Errorf("elevation response has no results")
	}
	if payload.Results[0].Elevation == nil {
		return 0, fmt.Errorf("elevation missing from first result")
	}

	return *payload.Results[0].Elevation, nil
}
