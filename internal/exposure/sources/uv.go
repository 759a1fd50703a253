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

// UVSource reads the current UV index from the OpenWeatherMap one-call feed.
// The payload is the current reading, not the daily maximum.
type UVSource struct {
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewUVSource(client *http.Client, apiKey string) *UVSource {
	return &UVSource{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/onecall",
		client:  client,
		circuit: newBreaker("uv"),
	}
}

func (s *UVSource) Name() string {
	return exposure.SourceUV
}

func (s *UVSource) Fetch(ctx context.Context, req exposure.Request) (exposure.Payload, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("openweather %w", errMissingKey)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", req.Lat))
		values.Set("lon", fmt.Sprintf("%f", req.Lon))
		values.Set("exclude", "minutely,hourly,daily,alerts")
		values.Set("appid", s.apiKey)

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", s.baseURL, values.Encode()), nil)
	}

	resp, err := doRequest(ctx, s.client, s.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Dt  int64   `json:"dt"`
			UVI float64 `json:"uvi"`
		} `json:"current"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return exposure.Payload{
		"source":    "openweathermap",
		"uv_index":  payload.Current.UVI,
		"timestamp": payload.Current.Dt,
	}, nil
}
