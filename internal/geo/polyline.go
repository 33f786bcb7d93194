// Package geo parses track centerlines and provides the planar geometry
// shared by the track and the headless world.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrInvalidCoordinates is returned when a coordinate pair is malformed
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParsePolyline parses a JSON array of planar coordinates into a geom.LineString.
// Input format: "[[x1,y1],[x2,y2],...]"
func ParsePolyline(input string) (geom.LineString, error) {
	coords, err := parsePairs(input)
	if err != nil {
		return geom.LineString{}, err
	}
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return lineString(flat)
}

// ParseLonLatPolyline parses a JSON array of [lon,lat] pairs, projects them
// through EPSG:3857 and returns local metres relative to the first point.
func ParseLonLatPolyline(input string) (geom.LineString, error) {
	coords, err := parsePairs(input)
	if err != nil {
		return geom.LineString{}, err
	}

	toMercator := wgs84.EPSG().Transform(4326, 3857)
	// mercator stretches by 1/cos(lat); undo it at the origin latitude
	scale := math.Cos(coords[0][1] * math.Pi / 180)
	x0, y0, _ := toMercator(coords[0][0], coords[0][1], 0)

	flat := make([]float64, 0, len(coords)*2)
	for i, c := range coords {
		if c[1] < -90 || c[1] > 90 || c[0] < -180 || c[0] > 180 {
			return geom.LineString{}, fmt.Errorf("coordinate %d: %w", i, ErrInvalidCoordinates)
		}
		x, y, _ := toMercator(c[0], c[1], 0)
		flat = append(flat, (x-x0)*scale, (y-y0)*scale)
	}
	return lineString(flat)
}

// lineString validates the centerline geometry.
func lineString(flat []float64) (geom.LineString, error) {
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("invalid polyline: %w", err)
	}
	return ls, nil
}

func parsePairs(input string) ([][]float64, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse polyline JSON: %w", err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("polyline must have at least 2 points, got %d", len(coords))
	}
	for i, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values: %w", i, ErrInvalidCoordinates)
		}
	}
	return coords, nil
}

// Points returns the vertices of ls as XY pairs.
func Points(ls geom.LineString) []geom.XY {
	seq := ls.Coordinates()
	out := make([]geom.XY, seq.Length())
	for i := range out {
		out[i] = seq.GetXY(i)
	}
	return out
}
