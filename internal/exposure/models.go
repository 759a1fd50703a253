package exposure

import (
	"time"
)

// Tier classifies a caller for TTL and quota purposes.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Source names under which results are merged into a record. Every key is
// present in Record.Fields after every successful aggregation, regardless of
// per-source failure.
const (
	SourceAirQuality = "airQuality"
	SourceTapWater   = "tapWater"
	SourceUV         = "uv"
	SourceHumidity   = "humidity"
	SourcePollen     = "pollen"
)

// Payload is a source-specific measurement object. The orchestrator never
// inspects it beyond merging it verbatim under the source's key; each source
// includes its own "source" tag.
type Payload map[string]any

// ErrorMarker builds the payload stored for a failed source.
func ErrorMarker(source, reason string) Payload {
	return Payload{"source": source, "error": reason}
}

// Article is one item of the local health news sub-record.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	Link        string `json:"link,omitempty"`
	PubDate     string `json:"pubDate,omitempty"`
}

// NewsRecord is the separately-timestamped news sub-record. It has its own
// freshness window because news is expensive to fetch and need not follow the
// record TTL.
type NewsRecord struct {
	Source    string    `json:"source,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
	Articles  []Article `json:"articles"`
	Error     string    `json:"error,omitempty"`
}

// Record is the unit of caching: one versioned environmental aggregate per
// cell. Full refreshes replace the record wholesale under a new version;
// news-only refreshes patch News in place.
type Record struct {
	CellID      string             `json:"cellId"`
	Location    string             `json:"location,omitempty"`
	Version     string             `json:"version"`
	GeneratedAt time.Time          `json:"generatedAt"`
	LastUpdated int64              `json:"lastUpdated"`
	Fields      map[string]Payload `json:"fields"`
	News        *NewsRecord        `json:"news,omitempty"`
}

// Age reports the staleness of the record's environmental fields. LastUpdated
// is the authoritative clock, not GeneratedAt.
func (r *Record) Age(now time.Time) time.Duration {
	return time.Duration(now.Unix()-r.LastUpdated) * time.Second
}
