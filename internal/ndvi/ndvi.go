package ndvi

import (
	"errors"
	"fmt"
	"math"
)

const (
	// Epsilon keeps the denominator away from zero for dark pixels.
	Epsilon = 1e-6
	// LowVigorThreshold is the NDVI below which a pixel counts as low vigor.
	LowVigorThreshold = 0.3
)

// Summary holds aggregate statistics of an NDVI surface. StdDev is the
// population standard deviation.
type Summary struct {
	Mean           float64 `json:"mean"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	StdDev         float64 `json:"stdDev"`
	LowNDVIAreaPct float64 `json:"lowNdviAreaPct"`
}

// Grid is a row-major NDVI surface, one value per pixel.
type Grid []float32

// InvalidInputError reports structurally valid but degenerate input.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}

func invalidf(format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Reason: fmt.Sprintf(format, args...)}
}

// Compute derives the per-pixel NDVI and its summary from band-interleaved
// (NIR, RED) samples. Values are not clamped.
func Compute(width, height int, samples []float32) (Grid, Summary, error) {
	if width <= 0 || height <= 0 {
		return nil, Summary{}, invalidf("raster has no pixels (%dx%d)", width, height)
	}
	n := width * height
	if len(samples) != n*2 {
		return nil, Summary{}, invalidf("got %d samples for %d two-band pixels", len(samples), n)
	}

	grid := make(Grid, n)
	var sum, sumSquares float64
	lowest := math.Inf(1)
	highest := math.Inf(-1)
	lowCount := 0

	for i := range n {
		nir := float64(samples[2*i])
		red := float64(samples[2*i+1])
		numerator := nir - red
		denominator := nir + red + Epsilon

		// Unreachable for ordinary inputs once Epsilon is added; kept so that
		// nir = red = -Epsilon/2 still yields 0.
		var value float64
		if denominator == 0 {
			value = 0
		} else {
			value = numerator / denominator
		}

		grid[i] = float32(value)
		sum += value
		sumSquares += value * value
		lowest = math.Min(lowest, value)
		highest = math.Max(highest, value)
		if value < LowVigorThreshold {
			lowCount++
		}
	}

	total := float64(n)
	// Rounding in the running sum can push a uniform grid's mean one ulp
	// outside [lowest, highest]. The variance below uses the clamped mean.
	mean := math.Min(math.Max(sum/total, lowest), highest)
	variance := sumSquares/total - mean*mean
	summary := Summary{
		Mean:           mean,
		Min:            lowest,
		Max:            highest,
		StdDev:         math.Sqrt(math.Max(variance, 0)),
		LowNDVIAreaPct: float64(lowCount) / total,
	}
	if math.IsNaN(summary.Mean) || math.IsNaN(summary.StdDev) {
		return nil, Summary{}, invalidf("NDVI statistics are NaN")
	}

	return grid, summary, nil
}

// Delta returns current.Mean - previous.Mean, or nil without a previous run.
func Delta(current Summary, previous *Summary) *float64 {
	if previous == nil {
		return nil
	}
	d := current.Mean - previous.Mean
	return &d
}
