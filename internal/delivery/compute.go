package delivery

import (
	"github.com/jwillz7667/CropLens/internal/ndvi"
	"github.com/jwillz7667/CropLens/internal/raster"
	"github.com/jwillz7667/CropLens/output"
)

// Result pairs the NDVI summary with the rendered PNG.
type Result struct {
	Width   int
	Height  int
	Summary ndvi.Summary
	Raster  []byte
}

// ComputeNDVI decodes a two-band raster, derives its NDVI surface and renders
// it. Nothing is returned unless every step succeeds.
func ComputeNDVI(v raster.View) (Result, error) {
	r, err := raster.Decode(v)
	if err != nil {
		return Result{}, err
	}

	grid, summary, err := ndvi.Compute(r.Width, r.Height, r.Samples)
	if err != nil {
		return Result{}, err
	}

	png, err := output.EncodeNDVIImage(r.Width, r.Height, grid)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Width:   r.Width,
		Height:  r.Height,
		Summary: summary,
		Raster:  png,
	}, nil
}
