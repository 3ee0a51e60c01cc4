package models

import "skyroute/internal/geo"

// RestrictedZone is a circular geofence that aircraft must not enter
type RestrictedZone struct {
	Name     string    `json:"name"`
	Center   geo.Point `json:"-"`
	RadiusKm float64   `json:"radius_km"`
}

// Contains reports the distance from p to the zone center and whether p is inside the zone
func (z RestrictedZone) Contains(p geo.Point) (float64, bool) {
	d := geo.Distance(p, z.Center)
	return d, d < z.RadiusKm
}
