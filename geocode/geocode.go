// Package geocode resolves free-text addresses to coordinates through the
// HERE Geocoding & Search v1 API. Results are not cached and failures are
// not retried: a clock-in that cannot place its job site fails fast.
package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/moverdesk/am/geotime"
	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/internal/httpclient"
	"github.com/teranos/moverdesk/logger"
)

// ErrAddressNotResolved is returned when the provider has no candidate for an address.
var ErrAddressNotResolved = errors.New("address not resolved")

// Config configures a Client.
type Config struct {
	BaseURL string // e.g. https://geocode.search.hereapi.com
	APIKey  string
	HTTP    *httpclient.Client
	Logger  *zap.SugaredLogger
}

// Client geocodes addresses.
type Client struct {
	base   string
	apiKey string
	http   *httpclient.Client
	logger *zap.SugaredLogger
}

// NewClient creates a geocoding client.
func NewClient(cfg Config) *Client {
	l := cfg.Logger
	if l == nil {
		l = logger.ComponentLogger("geocode")
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		http:   cfg.HTTP,
		logger: l,
	}
}

type geocodeResponse struct {
	Items []struct {
		Title    string `json:"title"`
		Position struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"position"`
	} `json:"items"`
	Title            string `json:"title"`
	ErrorDescription string `json:"error_description"`
}

// Geocode returns the first candidate's position for address.
func (c *Client) Geocode(ctx context.Context, address string) (geotime.Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return geotime.Point{}, errors.Wrap(ErrAddressNotResolved, "empty address")
	}
	if c.apiKey == "" {
		return geotime.Point{}, errors.WithHint(
			errors.Mark(errors.New("geocoder API key is not configured"), errors.ErrServiceUnavailable),
			"set HERE_API_KEY",
		)
	}

	params := url.Values{}
	params.Set("q", address)
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/geocode?"+params.Encode(), nil)
	if err != nil {
		return geotime.Point{}, errors.Wrap(err, "build geocode request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return geotime.Point{}, errors.Wrap(err, "geocode")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return geotime.Point{}, errors.Wrap(errors.ErrRateLimited, "geocoder throttled")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return geotime.Point{}, errors.Mark(
			errors.Newf("geocoder rejected the API key (status %d)", resp.StatusCode),
			errors.ErrServiceUnavailable,
		)
	case resp.StatusCode >= 500:
		return geotime.Point{}, errors.Mark(
			errors.Newf("geocoder unavailable (status %d)", resp.StatusCode),
			errors.ErrServiceUnavailable,
		)
	case resp.StatusCode != http.StatusOK:
		return geotime.Point{}, errors.Newf("geocoder answered status %d: %s", resp.StatusCode, truncate(string(resp.Body), 256))
	}

	var body geocodeResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return geotime.Point{}, errors.Wrap(err, "decode geocode response")
	}

	if len(body.Items) == 0 {
		logger.FromContext(ctx, c.logger).Infow("Address not resolved", "address", address)
		return geotime.Point{}, errors.Wrapf(ErrAddressNotResolved, "could not find coordinates for %q", address)
	}

	first := body.Items[0]
	point := geotime.Point{Lat: first.Position.Lat, Lon: first.Position.Lng}
	if !point.Valid() {
		return geotime.Point{}, errors.Newf("geocoder returned an invalid position %v for %q", point, address)
	}

	c.logger.Debugw("Address geocoded",
		"address", address,
		"match", first.Title,
		"lat", point.Lat,
		"lon", point.Lon,
	)
	return point, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
