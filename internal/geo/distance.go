package geo

import (
	"math"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in decimal degrees
type Point struct {
	Lat float64
	Lon float64
}

// NewPoint builds a Point from latitude and longitude
func NewPoint(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon}
}

// Distance returns the great-circle distance between a and b in kilometers
func Distance(a, b Point) float64 {
	return DistanceLatLon(a.Lat, a.Lon, b.Lat, b.Lon)
}

// DistanceLatLon returns the haversine distance in kilometers between two coordinates
func DistanceLatLon(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)

	// Rounding can push sqrt(h) just past 1 near antipodes, which would make Asin return NaN
	s := math.Sqrt(math.Max(0, h))
	if s > 1 {
		s = 1
	}

	return 2 * EarthRadiusKm * math.Asin(s)
}

// Valid reports whether p is a finite coordinate inside the WGS84 lat/lon ranges
func Valid(p Point) bool {
	if !Finite(p) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Finite reports whether both coordinates of p are finite numbers
func Finite(p Point) bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lon) && !math.IsInf(p.Lon, 0)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
