package sources

import (
	"context"
	"log"

	"github.com/envhealth/exposure-api/internal/exposure"
	"github.com/envhealth/exposure-api/internal/geocode"
)

// safeCountries lists countries whose tap water is generally considered
// drinkable. Curated from WHO guidance; country names follow the geocoding
// provider's English spellings.
var safeCountries = map[string]bool{
	"Andorra": true, "Australia": true, "Austria": true, "Belgium": true,
	"Canada": true, "Chile": true, "Croatia": true, "Czechia": true,
	"Czech Republic": true, "Denmark": true, "Estonia": true, "Finland": true,
	"France": true, "Germany": true, "Greece": true, "Hungary": true,
	"Iceland": true, "Ireland": true, "Israel": true, "Italy": true,
	"Japan": true, "Liechtenstein": true, "Luxembourg": true, "Malta": true,
	"Monaco": true, "Netherlands": true, "New Zealand": true, "Norway": true,
	"Poland": true, "Portugal": true, "San Marino": true, "Singapore": true,
	"Slovenia": true, "South Korea": true, "Spain": true, "Sweden": true,
	"Switzerland": true, "United Kingdom": true, "United States": true,
}

// TapWaterSource derives tap-water safety from the request's country via
// reverse geocoding and a static safety table. Unlike the other feeds it
// degrades to an "unknown" verdict instead of failing, because a missing
// country is a usable answer.
type TapWaterSource struct {
	geocoder geocode.ReverseGeocoder
}

func NewTapWaterSource(geocoder geocode.ReverseGeocoder) *TapWaterSource {
	return &TapWaterSource{geocoder: geocoder}
}

func (s *TapWaterSource) Name() string {
	return exposure.SourceTapWater
}

func (s *TapWaterSource) Fetch(ctx context.Context, req exposure.Request) (exposure.Payload, error) {
	place, err := s.geocoder.Locate(ctx, req.Lat, req.Lon)
	if err != nil {
		log.Printf("tap water check failed for %f,%f: %v", req.Lat, req.Lon, err)
		return exposure.Payload{
			"source":  "geocoder+static",
			"country": "Unknown",
			"is_safe": nil,
		}, nil
	}

	return exposure.Payload{
		"source":  "geocoder+static",
		"country": place.Country,
		"is_safe": safeCountries[place.Country],
	}, nil
}
