// Package geocode resolves free-text place names into coordinates.
package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/bellvik/transport-planner/internal/routing"
)

// maxResults is the number of candidates returned by every Geocoder.
const maxResults = 3

// ErrEmptyQuery is returned when the query is blank.
var ErrEmptyQuery = errors.New("geocode: empty query")

// Place is one geocoding candidate.
type Place struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Score   float64 `json:"score"`
	Type    string  `json:"type,omitempty"`
}

// Coordinates returns the place as a routing point.
func (p Place) Coordinates() routing.Coordinates {
	return routing.Coordinates{Lat: p.Lat, Lon: p.Lon}
}

// Result is the outcome of a geocoding query, best candidate first.
type Result struct {
	Places       []Place `json:"results"`
	Source       string  `json:"source"`
	TotalResults int     `json:"total_results,omitempty"`
}

// Best returns the first candidate, if any.
func (r *Result) Best() (Place, bool) {
	if r == nil || len(r.Places) == 0 {
		return Place{}, false
	}
	return r.Places[0], true
}

// Geocoder resolves a query into candidate places.
type Geocoder interface {
	// Name is the identifier recorded in the call log.
	Name() string
	Geocode(ctx context.Context, query string) (*Result, error)
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
