package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/envhealth/exposure-api/internal/exposure"
)

// AirQualitySource reads the OpenWeatherMap air pollution feed.
type AirQualitySource struct {
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewAirQualitySource creates the adapter. The API key is validated on
// Fetch, not here, so a misconfigured key disables only this feed.
func NewAirQualitySource(client *http.Client, apiKey string) *AirQualitySource {
	return &AirQualitySource{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/air_pollution",
		client:  client,
		circuit: newBreaker("airquality"),
	}
}

func (s *AirQualitySource) Name() string {
	return exposure.SourceAirQuality
}

func (s *AirQualitySource) Fetch(ctx context.Context, req exposure.Request) (exposure.Payload, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("openweather %w", errMissingKey)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", req.Lat))
		values.Set("lon", fmt.Sprintf("%f", req.Lon))
		values.Set("appid", s.apiKey)

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", s.baseURL, values.Encode()), nil)
	}

	resp, err := doRequest(ctx, s.client, s.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				AQI int `json:"aqi"`
			} `json:"main"`
			Components struct {
				PM25 float64 `json:"pm2_5"`
				PM10 float64 `json:"pm10"`
				O3   float64 `json:"o3"`
				CO   float64 `json:"co"`
			} `json:"components"`
		} `json:"list"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.List) == 0 {
		return nil, fmt.Errorf("air pollution response has no readings")
	}

	reading := payload.List[0]
	return exposure.Payload{
		"source":    "openweathermap",
		"aqi":       reading.Main.AQI,
		"pm2_5":     reading.Components.PM25,
		"pm10":      reading.Components.PM10,
		"o3":        reading.Components.O3,
		"co":        reading.Components.CO,
		"timestamp": reading.Dt,
	}, nil
}
