// Package geo implements the engine's external geo services: Google's
// geocoding and elevation APIs and an offline timezone index.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/windmobile/windfabric/internal/engine"
	"github.com/windmobile/windfabric/internal/metrics"
)

const (
	connectTimeout = 7 * time.Second
	readTimeout    = 30 * time.Second
)

// GoogleClient calls the Google Maps web services the enrichment needs.
// Every response status that is not OK is mapped onto the engine's error
// taxonomy so callers can pick the right cache TTL.
type GoogleClient struct {
	apiKey string
	http   *http.Client
}

// NewGoogleClient builds a client with the fabric's connect/read deadline
// pair.
func NewGoogleClient(apiKey string) *GoogleClient {
	return &GoogleClient{
		apiKey: apiKey,
		http: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
			},
		},
	}
}

type statusEnvelope struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// call performs one API request, returning the raw response body after
// checking the embedded status field.
func (g *GoogleClient) call(ctx context.Context, endpoint string, query url.Values, apiName string) ([]byte, error) {
	metrics.APICalls.WithLabelValues(apiName).Inc()

	query.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env statusEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, engine.Providerf("[%s] unparseable response: %v", apiName, err)
	}
	switch env.Status {
	case "OK":
		return body, nil
	case "OVER_QUERY_LIMIT":
		return nil, &engine.UsageLimitError{Msg: fmt.Sprintf("[%s] OVER_QUERY_LIMIT", apiName)}
	case "INVALID_REQUEST":
		if env.ErrorMessage != "" {
			return nil, engine.Providerf("[%s] INVALID_REQUEST: %s", apiName, env.ErrorMessage)
		}
		return nil, engine.Providerf("[%s] INVALID_REQUEST", apiName)
	case "ZERO_RESULTS":
		return nil, engine.Providerf("[%s] ZERO_RESULTS", apiName)
	default:
		return nil, engine.Providerf("[%s] unexpected status '%s'", apiName, env.Status)
	}
}

// ReverseGeocode returns the raw geocoding response for a coordinate. The
// engine caches the body verbatim and parses names out of it.
func (g *GoogleClient) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("latlng", formatCoord(lat)+","+formatCoord(lon))
	body, err := g.call(ctx, "https://maps.googleapis.com/maps/api/geocode/json", q, "Google Geocoding API")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

type elevationResponse struct {
	Results []struct {
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

// Elevation samples the elevation service at the given points, in order.
func (g *GoogleClient) Elevation(ctx context.Context, points []engine.LatLon) ([]float64, error) {
	locs := make([]string, len(points))
	for i, p := range points {
		locs[i] = fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
	}
	q := url.Values{}
	q.Set("locations", strings.Join(locs, "|"))
	body, err := g.call(ctx, "https://maps.googleapis.com/maps/api/elevation/json", q, "Google Maps Elevation API")
	if err != nil {
		return nil, err
	}

	var parsed elevationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, engine.Providerf("[Google Maps Elevation API] unparseable results: %v", err)
	}
	elevations := make([]float64, len(parsed.Results))
	for i, r := range parsed.Results {
		elevations[i] = r.Elevation
	}
	return elevations, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
