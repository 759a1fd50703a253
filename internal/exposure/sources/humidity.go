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

// HumiditySource reads relative humidity from the OpenWeatherMap current
// weather feed.
type HumiditySource struct {
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewHumiditySource(client *http.Client, apiKey string) *HumiditySource {
	return &HumiditySource{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		client:  client,
		circuit: newBreaker("humidity"),
	}
}

func (s *HumiditySource) Name() string {
	return exposure.SourceHumidity
}

func (s *HumiditySource) Fetch(ctx context.Context, req exposure.Request) (exposure.Payload, error) {
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
		Dt   int64 `json:"dt"`
		Main struct {
			Humidity float64 `json:"humidity"`
		} `json:"main"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return exposure.Payload{
		"source":    "openweathermap",
		"humidity":  payload.Main.Humidity,
		"timestamp": payload.Dt,
	}, nil
}
