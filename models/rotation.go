package models

import (
	"fmt"
	"net/url"
	"strings"
)

const mapsSearchBase = "https://www.google.com.mx/maps/search/"

// Zone is a named geographic search centre.
type Zone struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RotationTarget is what a single scrape run searches for. It is recomputed
// from the calendar on every run and never persisted.
type RotationTarget struct {
	Niche       string  `json:"niche"`
	ZoneName    string  `json:"zone_name"`
	ZoneIndex   int     `json:"zone_index"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ZoomLevel   int     `json:"zoom_level"`
	WeekOfMonth int     `json:"week_of_month"`
	DayOfWeek   int     `json:"day_of_week"`
	Month       int     `json:"month"`
	ZoneOffset  int     `json:"zone_offset"`
}

// SearchURL builds the map search URL centred on the target zone.
func (t RotationTarget) SearchURL() string {
	query := strings.ReplaceAll(url.PathEscape(t.Niche), "%20", "+")
	return fmt.Sprintf("%s%s/@%.7f,%.7f,%dz", mapsSearchBase, query, t.Latitude, t.Longitude, t.ZoomLevel)
}
