// Package geometry validates the region a user selected on the map before
// it is sent to the analysis backend.
//
// Accepted inputs are GeoJSON Polygon, MultiPolygon, or a FeatureCollection
// whose features are all Polygon or MultiPolygon. Area is geodesic, in
// square kilometres.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// GeoJSON type names accepted at the top level.
const (
	TypePolygon           = "Polygon"
	TypeMultiPolygon      = "MultiPolygon"
	TypeFeatureCollection = "FeatureCollection"
)

const sqMetersPerSqKm = 1e6

// Region is a validated selection.
type Region struct {
	// Type is the top-level GeoJSON type.
	Type string
	// Parts holds each polygonal geometry; one per feature for collections.
	Parts []orb.Geometry
	// AreaSqKm is the summed geodesic area of all parts.
	AreaSqKm float64
	// Raw is the input exactly as received.
	Raw json.RawMessage
}

// Validate checks the shape of raw and then compares its area with
// maxAreaSqKm. Shape problems are reported before any area computation.
func Validate(raw json.RawMessage, maxAreaSqKm float64) (Region, error) {
	region, err := Parse(raw)
	if err != nil {
		return Region{}, err
	}
	if region.AreaSqKm > maxAreaSqKm {
		return region, &AreaExceededError{AreaSqKm: region.AreaSqKm, MaxAreaSqKm: maxAreaSqKm}
	}
	return region, nil
}

// Parse decodes and shape-checks raw and computes its area.
func Parse(raw json.RawMessage) (Region, error) {
	var head struct {
		Type string `json:"type"`
	}
	if len(raw) == 0 {
		return Region{}, shapeErr("geometry is empty")
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Region{}, shapeErr("geometry is not a JSON object: %v", err)
	}

	region := Region{Type: head.Type, Raw: raw}
	switch head.Type {
	case TypePolygon, TypeMultiPolygon:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return Region{}, shapeErr("decode %s: %v", head.Type, err)
		}
		if err := checkPolygonal(g.Coordinates); err != nil {
			return Region{}, err
		}
		region.Parts = []orb.Geometry{g.Coordinates}
	case TypeFeatureCollection:
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return Region{}, shapeErr("decode FeatureCollection: %v", err)
		}
		if len(fc.Features) == 0 {
			return Region{}, shapeErr("FeatureCollection has no features")
		}
		for i, f := range fc.Features {
			if reason := polygonalProblem(f.Geometry); reason != "" {
				return Region{}, shapeErr("feature %d: %s", i, reason)
			}
			region.Parts = append(region.Parts, f.Geometry)
		}
	case "":
		return Region{}, shapeErr("geometry has no type")
	default:
		return Region{}, shapeErr("type %q is not allowed; use Polygon, MultiPolygon or a FeatureCollection of them", head.Type)
	}

	region.AreaSqKm = AreaSqKm(region.Parts...)
	return region, nil
}

// AreaSqKm returns the summed geodesic area of the given geometries.
func AreaSqKm(parts ...orb.Geometry) float64 {
	var total float64
	for _, g := range parts {
		switch g := g.(type) {
		case orb.Polygon:
			total += math.Abs(geo.Area(g))
		case orb.MultiPolygon:
			for _, p := range g {
				total += math.Abs(geo.Area(p))
			}
		}
	}
	return total / sqMetersPerSqKm
}

func checkPolygonal(g orb.Geometry) error {
	if reason := polygonalProblem(g); reason != "" {
		return &ShapeError{Reason: reason}
	}
	return nil
}

// polygonalProblem describes why g is not an accepted polygonal shape,
// or returns "" when it is.
func polygonalProblem(g orb.Geometry) string {
	switch g := g.(type) {
	case orb.Polygon:
		return polygonProblem(g)
	case orb.MultiPolygon:
		if len(g) == 0 {
			return "MultiPolygon has no polygons"
		}
		for i, p := range g {
			if reason := polygonProblem(p); reason != "" {
				return fmt.Sprintf("polygon %d: %s", i, reason)
			}
		}
		return ""
	case nil:
		return "missing geometry"
	default:
		return fmt.Sprintf("type %q is not allowed", g.GeoJSONType())
	}
}

func polygonProblem(p orb.Polygon) string {
	if len(p) == 0 {
		return "polygon has no rings"
	}
	for i, ring := range p {
		if len(ring) < 4 {
			return fmt.Sprintf("ring %d has %d positions, need at least 4", i, len(ring))
		}
	}
	return ""
}

func shapeErr(format string, args ...any) error {
	return &ShapeError{Reason: fmt.Sprintf(format, args...)}
}
