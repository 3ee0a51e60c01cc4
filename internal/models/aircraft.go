package models

import (
	"time"

	"skyroute/internal/geo"
)

// Category is the coarse classification of an aircraft
type Category string

const (
	CategoryPassenger Category = "passenger"
	CategoryCargo     Category = "cargo"
	CategoryUnknown   Category = "unknown"
)

// Aircraft is the live state of a tracked aircraft
type Aircraft struct {
	ID          string    `json:"id"`       // ICAO 24-bit address or simulator id
	Callsign    string    `json:"callsign"` // e.g. AMX123
	Lat         float64   `json:"lat"`      // degrees
	Lon         float64   `json:"lon"`      // degrees
	AltitudeFt  float64   `json:"altitude"` // barometric altitude in feet
	VelocityKts float64   `json:"velocity"` // ground speed in knots
	Heading     float64   `json:"heading"`  // true track in degrees
	Category    Category  `json:"category"`
	LastSeen    time.Time `json:"last_seen"`
}

// Position returns the aircraft's horizontal position
func (a Aircraft) Position() geo.Point {
	return geo.NewPoint(a.Lat, a.Lon)
}

// Label is the name used in alert text, the callsign when known
func (a Aircraft) Label() string {
	if a.Callsign != "" {
		return a.Callsign
	}
	return a.ID
}
