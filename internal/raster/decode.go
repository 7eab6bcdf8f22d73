package raster

import (
	"errors"
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
)

// Raster is a decoded two-band grid. Samples are band interleaved per pixel:
// Samples[2*i] is NIR and Samples[2*i+1] is RED at pixel i, row-major.
type Raster struct {
	Width   int
	Height  int
	Samples []float32
}

// DecodeError reports a malformed or unsupported raster container.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode raster: %s: %v", e.Reason, e.Err)
	}
	return "decode raster: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// GDAL warnings (missing georeferencing, unknown tags) are not fatal for a
// two-band read.
func quietWarnings(ec godal.ErrorCategory, code int, msg string) error {
	if ec <= godal.CE_Warning {
		return nil
	}
	return fmt.Errorf("gdal error %d: %s", code, msg)
}

// Decode parses a tagged-image raster container and returns its first two
// bands (NIR, RED) as interleaved float32 samples.
func Decode(v View) (Raster, error) {
	if v.Len() == 0 {
		return Raster{}, decodeErrorf("empty raster source")
	}
	if err := ensureRegistered(); err != nil {
		return Raster{}, fmt.Errorf("failed to register in-memory raster handler: %w", err)
	}

	key := uuid.NewString() + ".tif"
	handler.views.Store(key, v)
	defer handler.views.Delete(key)

	ds, err := godal.Open(vsiPrefix+key, godal.RasterOnly(), godal.ErrLogger(quietWarnings))
	if err != nil {
		return Raster{}, &DecodeError{Reason: "not a raster container", Err: err}
	}
	defer ds.Close()

	structure := ds.Structure()
	if structure.NBands < 2 {
		return Raster{}, decodeErrorf("raster has %d band(s), need NIR and RED", structure.NBands)
	}
	width, height := structure.SizeX, structure.SizeY

	bands := ds.Bands()
	nir, err := readBand(bands[0], width, height)
	if err != nil {
		return Raster{}, err
	}
	red, err := readBand(bands[1], width, height)
	if err != nil {
		return Raster{}, err
	}

	samples := make([]float32, 0, width*height*2)
	for i := range nir {
		samples = append(samples, nir[i], red[i])
	}
	if len(samples) != width*height*2 {
		return Raster{}, decodeErrorf("decoded %d samples for a %dx%d two-band raster", len(samples), width, height)
	}

	return Raster{Width: width, Height: height, Samples: samples}, nil
}

func readBand(band godal.Band, width, height int) ([]float32, error) {
	bs := band.Structure()
	if bs.SizeX != width || bs.SizeY != height {
		return nil, decodeErrorf("band size %dx%d does not match raster size %dx%d", bs.SizeX, bs.SizeY, width, height)
	}
	data := make([]float32, width*height)
	if len(data) == 0 {
		return data, nil
	}
	if err := band.Read(0, 0, data, width, height); err != nil {
		return nil, &DecodeError{Reason: "failed to read band samples", Err: err}
	}
	return data, nil
}
