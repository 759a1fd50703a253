package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/envhealth/exposure-api/internal/exposure"
)

var pollenSpecies = []string{"alder", "birch", "grass", "mugwort", "olive", "ragweed"}

// PollenSource reads pollen concentrations from the Open-Meteo air quality
// feed. No API key required.
type PollenSource struct {
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewPollenSource(client *http.Client) *PollenSource {
	return &PollenSource{
		baseURL: "https://air-quality-api.open-meteo.com/v1/air-quality",
		client:  client,
		circuit: newBreaker("pollen"),
	}
}

func (s *PollenSource) Name() string {
	return exposure.SourcePollen
}

func (s *PollenSource) Fetch(ctx context.Context, req exposure.Request) (exposure.Payload, error) {
	buildRequest := func() (*http.Request, error) {
		hourly := make([]string, len(pollenSpecies))
		for i, sp := range pollenSpecies {
			hourly[i] = sp + "_pollen"
		}

		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", req.Lat))
		values.Set("longitude", fmt.Sprintf("%f", req.Lon))
		values.Set("hourly", strings.Join(hourly, ","))
		values.Set("timezone", "auto")

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", s.baseURL, values.Encode()), nil)
	}

	resp, err := doRequest(ctx, s.client, s.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly map[string]json.RawMessage `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	// Take the first hourly data point for each species.
	out := exposure.Payload{"source": "open-meteo"}
	for _, sp := range pollenSpecies {
		out[sp] = firstValue(payload.Hourly[sp+"_pollen"])
	}
	out["timestamp"] = firstValue(payload.Hourly["time"])
	return out, nil
}

func firstValue(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil || len(values) == 0 {
		return nil
	}
	return values[0]
}
