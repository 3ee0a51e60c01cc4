package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

var toWebMercator = wgs84.EPSG().Transform(4326, 3857)

// WebMercator projects p from EPSG:4326 into EPSG:3857 meters, the coordinate system
// used by slippy map tiles
func WebMercator(p Point) (x, y float64) {
	x, y, _ = toWebMercator(p.Lon, p.Lat, 0)
	return x, y
}

// ProjectAll projects every point into EPSG:3857 as [x, y] pairs
func ProjectAll(points []Point) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		x, y := WebMercator(p)
		out[i] = [2]float64{x, y}
	}
	return out
}

// LineString builds a lon/lat LineString from an ordered path.
// A path needs at least two points to form a line.
func LineString(points []Point) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("line string needs at least 2 points, got %d", len(points))
	}

	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.Lon, p.Lat)
	}

	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}

// GeoJSON renders an ordered path as a GeoJSON LineString geometry.
// Paths shorter than two points produce nil.
func GeoJSON(points []Point) ([]byte, error) {
	if len(points) < 2 {
		return nil, nil
	}

	ls, err := LineString(points)
	if err != nil {
		return nil, err
	}

	data, err := ls.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal line string: %w", err)
	}
	return data, nil
}
