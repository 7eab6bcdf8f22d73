package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwillz7667/CropLens/internal/sentinel"
	"github.com/jwillz7667/CropLens/internal/store"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FieldSnapshot is a field and its newest analysis, if any.
type FieldSnapshot struct {
	Field  store.Field
	Latest *store.Analysis
}

// FieldsFeatureCollection maps each field to a feature carrying its latest
// NDVI figures. Fields without a usable boundary are drawn at their centroid.
func FieldsFeatureCollection(snapshots []FieldSnapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range snapshots {
		var geom orb.Geometry = orb.Point{s.Field.Centroid.Lng, s.Field.Centroid.Lat}
		if g, err := sentinel.ParseGeometry(s.Field.Boundary); err == nil {
			geom = g
		}

		feature := geojson.NewFeature(geom)
		feature.ID = s.Field.ID
		feature.Properties["name"] = s.Field.Name
		feature.Properties["acreage"] = s.Field.Acreage
		if s.Field.Crop != nil {
			feature.Properties["crop"] = *s.Field.Crop
		}
		if s.Latest != nil {
			feature.Properties["analysisId"] = s.Latest.ID
			feature.Properties["ndviMean"] = s.Latest.Summary.Mean
			feature.Properties["lowNdviAreaPct"] = s.Latest.LowNDVIAreaPct
			if s.Latest.AvgNDVIDelta != nil {
				feature.Properties["avgNdviDelta"] = *s.Latest.AvgNDVIDelta
			}
			feature.Properties["ndviRasterUrl"] = s.Latest.RasterURL
			feature.Properties["generatedAt"] = s.Latest.CreatedAt
		}
		fc.Append(feature)
	}
	return fc
}

// CreateFieldsGeoJSON writes the collection to outputPath, adding the
// .geojson extension when missing.
func CreateFieldsGeoJSON(snapshots []FieldSnapshot, outputPath string) (string, error) {
	if !strings.HasSuffix(outputPath, ".geojson") {
		outputPath += ".geojson"
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create output folder: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("error creating GeoJSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(FieldsFeatureCollection(snapshots)); err != nil {
		return "", fmt.Errorf("error encoding GeoJSON: %w", err)
	}
	return outputPath, nil
}
