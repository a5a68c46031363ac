package maps

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCoordinates is returned when lat/lon fall outside the valid range.
var ErrInvalidCoordinates = errors.New("maps: coordinates out of range")

// WeatherType selects the Azure Maps weather endpoint.
type WeatherType string

const (
	CurrentConditions WeatherType = "CURRENT_CONDITIONS"
	DailyForecast     WeatherType = "DAILY_FORECAST"
	SevereAlerts      WeatherType = "SEVERE_ALERTS"
)

// WeatherTypes lists every category in declaration order.
var WeatherTypes = []WeatherType{CurrentConditions, DailyForecast, SevereAlerts}

// Path returns the endpoint path relative to the weather root.
func (w WeatherType) Path() string {
	switch w {
	case CurrentConditions:
		return "currentConditions/"
	case DailyForecast:
		return "forecast/daily/"
	case SevereAlerts:
		return "severe/alerts/"
	default:
		return ""
	}
}

// Label returns the human readable form, e.g. "daily forecast".
func (w WeatherType) Label() string {
	return strings.ToLower(strings.ReplaceAll(string(w), "_", " "))
}

// Valid reports whether w is a known category.
func (w WeatherType) Valid() bool {
	return w.Path() != ""
}

// ParseWeatherType finds the first known category name contained in s (case-insensitive).
func ParseWeatherType(s string) (WeatherType, bool) {
	upper := strings.ToUpper(s)
	for _, w := range WeatherTypes {
		if strings.Contains(upper, string(w)) {
			return w, true
		}
	}
	return "", false
}

// Coordinates is a (lat, lon) pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the coordinate ranges.
func (c Coordinates) Validate() error {
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: received lat %v lon %v, range for lat -90 - 90, range for lon -180 - 180",
			ErrInvalidCoordinates, c.Lat, c.Lon)
	}
	return nil
}

// Query formats the coordinates as the Azure Maps "lat,lon" query value.
func (c Coordinates) Query() string {
	return fmt.Sprintf("%v,%v", c.Lat, c.Lon)
}

// Address is the subset of the search address payload the assistant uses.
type Address struct {
	Country            string `json:"country"`
	CountrySubdivision string `json:"countrySubdivision,omitempty"`
	Municipality       string `json:"municipality,omitempty"`
	PostalCode         string `json:"postalCode,omitempty"`
	FreeformAddress    string `json:"freeformAddress"`
}

// SearchResult is one geocoding match.
type SearchResult struct {
	Type     string      `json:"type,omitempty"`
	Score    float64     `json:"score"`
	Position Coordinates `json:"position"`
	Address  Address     `json:"address"`
}

// Description renders "country, freeformAddress".
func (r SearchResult) Description() string {
	return fmt.Sprintf("%s, %s", r.Address.Country, r.Address.FreeformAddress)
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}
