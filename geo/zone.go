package geo

import (
	_ "embed"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

//go:embed zones/lalitpur.geojson
var defaultZone []byte

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type geoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometry    *geometry       `json:"geometry"`
	Features    []geoJSON       `json:"features"`
}

// DefaultZone returns the embedded Lalitpur operating zone.
func DefaultZone() Polygon {
	p, err := ParseZone(defaultZone)
	if err != nil {
		panic(fmt.Sprintf("embedded zone: %v", err))
	}
	return p
}

// LoadZone reads a GeoJSON zone from r. See ParseZone.
func LoadZone(r io.Reader) (Polygon, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Polygon{}, err
	}
	return ParseZone(b)
}

// ParseZone accepts a GeoJSON Polygon, a Feature wrapping one, or a
// FeatureCollection holding exactly one such Feature.
func ParseZone(b []byte) (Polygon, error) {
	var doc geoJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return Polygon{}, fmt.Errorf("%w: %v", ErrInvalidPolygon, err)
	}
	return doc.polygon()
}

func (g geoJSON) polygon() (Polygon, error) {
	switch g.Type {
	case "Polygon":
		return decodeRings(g.Coordinates)
	case "Feature":
		if g.Geometry == nil || g.Geometry.Type != "Polygon" {
			return Polygon{}, fmt.Errorf("%w: feature geometry must be a Polygon", ErrInvalidPolygon)
		}
		return decodeRings(g.Geometry.Coordinates)
	case "FeatureCollection":
		if len(g.Features) != 1 {
			return Polygon{}, fmt.Errorf("%w: expected 1 feature, got %d", ErrInvalidPolygon, len(g.Features))
		}
		return g.Features[0].polygon()
	default:
		return Polygon{}, fmt.Errorf("%w: unsupported GeoJSON type %q", ErrInvalidPolygon, g.Type)
	}
}

func decodeRings(raw json.RawMessage) (Polygon, error) {
	var rings [][][2]float64
	if err := json.Unmarshal(raw, &rings); err != nil {
		return Polygon{}, fmt.Errorf("%w: %v", ErrInvalidPolygon, err)
	}
	p := NewPolygon(rings...)
	if err := p.Validate(); err != nil {
		return Polygon{}, err
	}
	return p, nil
}
