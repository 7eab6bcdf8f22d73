package output

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/jwillz7667/CropLens/internal/ndvi"
)

var bareSoil = color.RGBA{R: 120, G: 53, B: 15, A: 255}

// ColorForValue maps an NDVI value to its display color. Values are clamped
// to [-0.2, 1] first; anything still negative is drawn as bare soil.
func ColorForValue(value float64) color.RGBA {
	if math.IsNaN(value) {
		return color.RGBA{A: 255}
	}
	clamped := math.Max(-0.2, math.Min(1, value))
	if clamped < 0 {
		return bareSoil
	}
	ratio := clamped
	return color.RGBA{
		R: uint8(math.Floor(255 - ratio*155)),
		G: uint8(math.Floor(80 + ratio*150)),
		B: uint8(math.Floor(60 + ratio*60)),
		A: 255,
	}
}

// RenderNDVI paints the grid row-major, top to bottom.
func RenderNDVI(width, height int, grid ndvi.Grid) (image.Image, error) {
	dc, err := paint(width, height, grid)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

func paint(width, height int, grid ndvi.Grid) (*gg.Context, error) {
	if width <= 0 || height <= 0 {
		return nil, &ndvi.InvalidInputError{Reason: fmt.Sprintf("cannot render a %dx%d image", width, height)}
	}
	if len(grid) != width*height {
		return nil, &ndvi.InvalidInputError{Reason: fmt.Sprintf("grid has %d values for a %dx%d image", len(grid), width, height)}
	}

	dc := gg.NewContext(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := ColorForValue(float64(grid[width*y+x]))
			dc.SetRGBA255(int(c.R), int(c.G), int(c.B), int(c.A))
			dc.SetPixel(x, y)
		}
	}
	return dc, nil
}

// EncodeNDVIImage renders the grid and returns it as PNG bytes.
func EncodeNDVIImage(width, height int, grid ndvi.Grid) ([]byte, error) {
	dc, err := paint(width, height, grid)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode NDVI image: %w", err)
	}
	return buf.Bytes(), nil
}

// CreateNDVIImage writes the rendered grid to outputPath as a PNG.
func CreateNDVIImage(width, height int, grid ndvi.Grid, outputPath string) (string, error) {
	if !strings.HasSuffix(outputPath, ".png") {
		outputPath += ".png"
	}
	data, err := EncodeNDVIImage(width, height, grid)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create output folder: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write NDVI image: %w", err)
	}
	return outputPath, nil
}
