package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/neighbourhood/atmfinder/internal/config"
	"github.com/neighbourhood/atmfinder/internal/geo"
)

// HTTPGeocoder resolves locations through a Google-style geocoding endpoint.
type HTTPGeocoder struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPGeocoder builds a geocoder from configuration.
func NewHTTPGeocoder(cfg config.GeocoderConfig) *HTTPGeocoder {
	return &HTTPGeocoder{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode queries the API with "<location>, <parish>, Jamaica".
func (g *HTTPGeocoder) Geocode(ctx context.Context, location, parish string) (geo.Coordinate, error) {
	query := url.Values{}
	query.Set("address", fmt.Sprintf("%s, %s, Jamaica", location, parish))
	query.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Coordinate{}, fmt.Errorf("geocode request returned status %d", resp.StatusCode)
	}

	var payload geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return geo.Coordinate{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(payload.Results) == 0 {
		return geo.Coordinate{}, ErrNoResults
	}

	loc := payload.Results[0].Geometry.Location
	return geo.Coordinate{Lat: loc.Lat, Lng: loc.Lng}, nil
}
