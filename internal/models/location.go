package models

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LocationFix is a resolved snapshot of place names around a coordinate,
// ordered from the most specific (area) to the least specific (state).
type LocationFix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Area       string    `json:"area,omitempty"`
	City       string    `json:"city,omitempty"`
	Fields     []string  `json:"fields"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Point returns the fix coordinate in orb's lon/lat order
func (f *LocationFix) Point() orb.Point {
	return orb.Point{f.Longitude, f.Latitude}
}

// Feature renders the fix as a GeoJSON point feature
func (f *LocationFix) Feature() *geojson.Feature {
	feature := geojson.NewFeature(f.Point())
	feature.Properties["area"] = f.Area
	feature.Properties["city"] = f.City
	feature.Properties["fields"] = f.Fields
	feature.Properties["resolved_at"] = f.ResolvedAt
	return feature
}

// Suggestion is one autocomplete result
type Suggestion struct {
	Name       string  `json:"name"`
	MatchScore float64 `json:"match_score"`
}
