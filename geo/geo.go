// Package geo holds the distance and containment maths used to settle rides.
package geo

import (
	"errors"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// edgeTolerance is how far (in degrees, cross-product units) a point may sit
// from an edge and still count as lying on it.
const edgeTolerance = 1e-12

var (
	ErrInvalidPolygon = errors.New("invalid polygon")
	ErrInvalidPoint   = errors.New("invalid point")
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// InRange reports whether p is finite with latitude in [-90, 90] and
// longitude in [-180, 180].
func (p Point) InRange() bool {
	return p.valid() && p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Point) valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) && !math.IsInf(p.Lat, 0) && !math.IsInf(p.Lng, 0)
}

// Distance returns the great-circle distance between two coordinates in
// kilometres, rounded to two decimal places.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	// Rounding can push a just outside [0, 1] near antipodes.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return math.Round(EarthRadiusKm*c*100) / 100
}

// DistanceBetween is Distance for two points.
func DistanceBetween(a, b Point) float64 {
	return Distance(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Polygon is an outer ring followed by zero or more holes. Each ring is an
// ordered list of vertices; the closing vertex may be repeated or omitted.
type Polygon struct {
	Rings [][]Point
}

// NewPolygon builds a polygon from GeoJSON-ordered rings of [lng, lat] pairs.
func NewPolygon(rings ...[][2]float64) Polygon {
	p := Polygon{Rings: make([][]Point, 0, len(rings))}
	for _, r := range rings {
		ring := make([]Point, 0, len(r))
		for _, v := range r {
			ring = append(ring, Point{Lat: v[1], Lng: v[0]})
		}
		p.Rings = append(p.Rings, ring)
	}
	return p
}

// Validate reports ErrInvalidPolygon when the polygon has no outer ring, a
// ring with fewer than three distinct vertices, or a non-finite coordinate.
func (p Polygon) Validate() error {
	if len(p.Rings) == 0 {
		return ErrInvalidPolygon
	}
	for _, r := range p.Rings {
		if len(openRing(r)) < 3 {
			return ErrInvalidPolygon
		}
		for _, v := range r {
			if !v.valid() {
				return ErrInvalidPolygon
			}
		}
	}
	return nil
}

// Contains reports whether pt lies inside the polygon. Points on any edge,
// including the edge of a hole, are inside. When the polygon or the point is
// malformed Contains returns false together with the error.
func (p Polygon) Contains(pt Point) (bool, error) {
	if !pt.valid() {
		return false, ErrInvalidPoint
	}
	if err := p.Validate(); err != nil {
		return false, err
	}

	outer := openRing(p.Rings[0])
	if onRing(pt, outer) {
		return true, nil
	}
	if !insideRing(pt, outer) {
		return false, nil
	}
	for _, h := range p.Rings[1:] {
		hole := openRing(h)
		if onRing(pt, hole) {
			return true, nil
		}
		if insideRing(pt, hole) {
			return false, nil
		}
	}
	return true, nil
}

// openRing drops a repeated closing vertex.
func openRing(r []Point) []Point {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

func insideRing(pt Point, ring []Point) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) {
			x := (b.Lng-a.Lng)*(pt.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lng
			if pt.Lng < x {
				inside = !inside
			}
		}
	}
	return inside
}

func onRing(pt Point, ring []Point) bool {
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		if onSegment(pt, ring[j], ring[i]) {
			return true
		}
	}
	return false
}

func onSegment(pt, a, b Point) bool {
	cross := (pt.Lng-a.Lng)*(b.Lat-a.Lat) - (pt.Lat-a.Lat)*(b.Lng-a.Lng)
	if math.Abs(cross) > edgeTolerance {
		return false
	}
	return pt.Lng >= min(a.Lng, b.Lng) && pt.Lng <= max(a.Lng, b.Lng) &&
		pt.Lat >= min(a.Lat, b.Lat) && pt.Lat <= max(a.Lat, b.Lat)
}
