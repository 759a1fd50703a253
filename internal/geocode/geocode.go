// Package geocode resolves coordinates to a human-readable place name and
// country. Results are best effort and never required for correctness; every
// caller tolerates the zero Place.
package geocode

import (
	"context"
	"errors"
	"fmt"

	"github.com/kelvins/geocoder"
)

// ErrNotConfigured is returned when no geocoding API key is set.
var ErrNotConfigured = errors.New("geocoder api key is not configured")

// Place is a coarse reverse-geocoding result.
type Place struct {
	City    string
	Country string
}

// String renders "City, Country" with whichever parts are known.
func (p Place) String() string {
	switch {
	case p.City != "" && p.Country != "":
		return fmt.Sprintf("%s, %s", p.City, p.Country)
	case p.Country != "":
		return p.Country
	default:
		return "Unknown Location"
	}
}

// ReverseGeocoder looks up the place containing a coordinate.
type ReverseGeocoder interface {
	Locate(ctx context.Context, lat, lon float64) (Place, error)
}

// Client reverse-geocodes through the Google Geocoding API.
type Client struct {
	configured bool
}

// New creates a Client. The underlying library keys itself off a package
// global, so the key is installed once here at construction.
func New(apiKey string) *Client {
	if apiKey != "" {
		geocoder.ApiKey = apiKey
	}
	return &Client{configured: apiKey != ""}
}

// Locate implements ReverseGeocoder. The underlying library does not accept
// a context; the call is bounded by its own HTTP timeout, and ctx is checked
// before dialing.
func (c *Client) Locate(ctx context.Context, lat, lon float64) (Place, error) {
	if !c.configured {
		return Place{}, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return Place{}, err
	}

	addresses, err := geocoder.GeocodingReverse(geocoder.Location{
		Latitude:  lat,
		Longitude: lon,
	})
	if err != nil {
		return Place{}, fmt.Errorf("reverse geocoding %f,%f: %w", lat, lon, err)
	}
	if len(addresses) == 0 {
		return Place{}, fmt.Errorf("no address for %f,%f", lat, lon)
	}

	addr := addresses[0]
	return Place{City: addr.City, Country: addr.Country}, nil
}
