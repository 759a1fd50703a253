package cell

import (
	"errors"
	"fmt"

	h3 "github.com/uber/h3-go/v4"
)

// Resolution is the fixed H3 resolution used for every cache key in the
// system. Records written at any other resolution would fragment the cache,
// so indexes at other resolutions are rejected rather than normalized.
const Resolution = 6

// ErrInvalidInput is returned for out-of-range coordinates or malformed
// cell indexes.
var ErrInvalidInput = errors.New("invalid input")

// Cell is a resolved geospatial cache key together with a concrete
// coordinate. When the cell index was the input, Lat/Lon are the cell
// centroid so downstream data sources always receive a usable coordinate.
type Cell struct {
	ID  string  `json:"cellId"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Resolve maps a coordinate pair to its canonical cell at the system
// resolution. It is deterministic and has no side effects.
func Resolve(lat, lon float64) (Cell, error) {
	if lat < -90 || lat > 90 {
		return Cell{}, fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidInput)
	}
	if lon < -180 || lon > 180 {
		return Cell{}, fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidInput)
	}

	c, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), Resolution)
	if err != nil {
		return Cell{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	return Cell{ID: c.String(), Lat: lat, Lon: lon}, nil
}

// ResolveIndex validates a pre-encoded cell index and re-derives its centroid
// coordinate. Indexes at a resolution other than the system resolution are
// rejected.
func ResolveIndex(id string) (Cell, error) {
	c := h3.Cell(h3.IndexFromString(id))
	if !c.IsValid() {
		return Cell{}, fmt.Errorf("%w: malformed cell index %q", ErrInvalidInput, id)
	}
	if c.Resolution() != Resolution {
		return Cell{}, fmt.Errorf("%w: cell index must be resolution %d", ErrInvalidInput, Resolution)
	}

	center, err := h3.CellToLatLng(c)
	if err != nil {
		return Cell{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	return Cell{ID: c.String(), Lat: center.Lat, Lon: center.Lng}, nil
}
