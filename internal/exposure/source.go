package exposure

import (
	"context"
)

// Request is the immutable context shared by every source call in one
// fan-out.
type Request struct {
	Lat    float64
	Lon    float64
	CellID string
	Tier   Tier
}

// Source abstracts one environmental data feed (air quality, UV, pollen,
// tap water, humidity). Fetch performs a single bounded call and returns the
// source-specific payload; the engine turns errors into markers, so a failing
// source never affects its peers.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) (Payload, error)
}

// NewsFetcher abstracts the local-health-news feed. It is kept apart from
// Source because news carries its own freshness window and a structured
// article list rather than an opaque measurement payload.
type NewsFetcher interface {
	FetchNews(ctx context.Context, req Request, location string) (NewsRecord, error)
}
