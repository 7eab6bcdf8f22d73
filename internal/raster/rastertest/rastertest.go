// Package rastertest builds GeoTIFF fixtures for tests.
package rastertest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

// EncodeGTiff writes one float32 band per entry of bands into a GeoTIFF and
// returns the file bytes. Every band must hold width*height samples.
func EncodeGTiff(dir string, width, height int, bands ...[]float32) ([]byte, error) {
	godal.RegisterAll()

	path := filepath.Join(dir, fmt.Sprintf("fixture_%dx%d_%d.tif", width, height, len(bands)))
	ds, err := godal.Create(godal.GTiff, path, len(bands), godal.Float32, width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to create fixture: %w", err)
	}
	for i, band := range ds.Bands() {
		if len(bands[i]) != width*height {
			ds.Close()
			return nil, fmt.Errorf("band %d has %d samples, want %d", i, len(bands[i]), width*height)
		}
		if err := band.Write(0, 0, bands[i], width, height); err != nil {
			ds.Close()
			return nil, fmt.Errorf("failed to write band %d: %w", i, err)
		}
	}
	if err := ds.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush fixture: %w", err)
	}
	return os.ReadFile(path)
}

// Uniform returns a two-band raster where every pixel has the given NIR and RED.
func Uniform(dir string, width, height int, nir, red float32) ([]byte, error) {
	n := make([]float32, width*height)
	r := make([]float32, width*height)
	for i := range n {
		n[i], r[i] = nir, red
	}
	return EncodeGTiff(dir, width, height, n, r)
}
