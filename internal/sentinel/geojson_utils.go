package sentinel

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var ErrUnsupportedGeometry = errors.New("field boundary must be a Polygon or MultiPolygon")

// ParseGeometry accepts a bare GeoJSON geometry, a Feature or a
// FeatureCollection holding exactly one feature.
func ParseGeometry(raw []byte) (orb.Geometry, error) {
	var g orb.Geometry
	if geom, err := geojson.UnmarshalGeometry(raw); err == nil && geom.Coordinates != nil {
		g = geom.Coordinates
	} else if f, err := geojson.UnmarshalFeature(raw); err == nil && f.Geometry != nil {
		g = f.Geometry
	} else if fc, err := geojson.UnmarshalFeatureCollection(raw); err == nil && len(fc.Features) == 1 {
		g = fc.Features[0].Geometry
	} else {
		return nil, fmt.Errorf("failed to parse field boundary GeoJSON")
	}

	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return g, nil
	default:
		return nil, fmt.Errorf("%w, got %s", ErrUnsupportedGeometry, g.GeoJSONType())
	}
}

// LoadFieldGeometry reads a FeatureCollection file and returns the geometry of
// the feature whose plot_id property equals plotID.
func LoadFieldGeometry(path, plotID string) (orb.Geometry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for _, feat := range fc.Features {
		if fmt.Sprint(feat.Properties["plot_id"]) == plotID {
			return feat.Geometry, nil
		}
	}
	return nil, fmt.Errorf("geometry not found for plot %s in %s", plotID, path)
}

// Centroid returns the area centroid as latitude, longitude.
func Centroid(g orb.Geometry) (float64, float64, error) {
	centroid, area := planar.CentroidArea(g)
	if area <= 0 {
		return 0, 0, errors.New("error getting centroid: geometry has no area")
	}
	return centroid.Y(), centroid.X(), nil
}
