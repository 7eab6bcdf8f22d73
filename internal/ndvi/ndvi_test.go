package ndvi

import (
	"math"
	"math/rand"
	"testing"
)

func uniform(n int, nir, red float32) []float32 {
	s := make([]float32, 0, n*2)
	for range n {
		s = append(s, nir, red)
	}
	return s
}

func TestComputeUniformVegetation(t *testing.T) {
	nir, red := float32(0.8), float32(0.2)
	grid, summary, err := Compute(4, 3, uniform(12, nir, red))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	n, r := float64(nir), float64(red)
	want := (n - r) / (n + r + Epsilon)
	if math.Abs(summary.Mean-want) > 1e-12 {
		t.Errorf("mean = %.10f, want %.10f", summary.Mean, want)
	}
	if math.Abs(summary.Mean-0.5999994) > 1e-6 {
		t.Errorf("mean = %.10f, want ~0.5999994", summary.Mean)
	}
	if summary.StdDev > 1e-6 {
		t.Errorf("stdDev = %g, want ~0", summary.StdDev)
	}
	if summary.LowNDVIAreaPct != 0 {
		t.Errorf("lowNdviAreaPct = %v, want 0", summary.LowNDVIAreaPct)
	}
	if len(grid) != 12 {
		t.Fatalf("grid has %d values, want 12", len(grid))
	}
	for i, v := range grid {
		if v != float32(want) {
			t.Errorf("grid[%d] = %v, want %v", i, v, float32(want))
		}
	}
}

func TestComputeDarkPixels(t *testing.T) {
	grid, summary, err := Compute(2, 2, uniform(4, 0, 0))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	for i, v := range grid {
		if v != 0 {
			t.Errorf("grid[%d] = %v, want 0", i, v)
		}
	}
	if summary.Mean != 0 || summary.StdDev != 0 || summary.Min != 0 || summary.Max != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.LowNDVIAreaPct != 1.0 {
		t.Errorf("lowNdviAreaPct = %v, want 1", summary.LowNDVIAreaPct)
	}
}

func TestComputeZeroDenominator(t *testing.T) {
	// nir + red + Epsilon is exactly 0 in float64 for this pair while
	// nir - red is not, so plain division would give -Inf.
	nir := math.Float32frombits(0xb58637bd)
	red := math.Float32frombits(0xa735ed8d)

	tests := []struct {
		name    string
		samples []float32
	}{
		{name: "exact zero denominator", samples: []float32{nir, red}},
		{name: "equal bands at minus half epsilon", samples: []float32{-5e-7, -5e-7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid, summary, err := Compute(1, 1, tt.samples)
			if err != nil {
				t.Fatalf("Compute failed: %v", err)
			}
			if grid[0] != 0 {
				t.Errorf("grid[0] = %v, want 0", grid[0])
			}
			if summary != (Summary{Mean: 0, Min: 0, Max: 0, StdDev: 0, LowNDVIAreaPct: 1}) {
				t.Errorf("summary = %+v", summary)
			}
		})
	}
}

func TestComputeDoesNotClamp(t *testing.T) {
	// NIR + RED sits just above -Epsilon, leaving a tiny positive denominator.
	_, summary, err := Compute(1, 1, []float32{0, -9.99e-7})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if summary.Max <= 1 {
		t.Errorf("expected an unclamped value above 1, got %v", summary.Max)
	}
}

func TestComputeInvalidInput(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name    string
		width   int
		height  int
		samples []float32
	}{
		{name: "zero size", width: 0, height: 0, samples: nil},
		{name: "zero width", width: 0, height: 5, samples: nil},
		{name: "sample count mismatch", width: 2, height: 2, samples: uniform(3, 0.5, 0.1)},
		{name: "NaN samples", width: 1, height: 2, samples: []float32{nan, 0.1, 0.5, 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Compute(tt.width, tt.height, tt.samples)
			if !IsInvalidInput(err) {
				t.Errorf("expected InvalidInputError, got %v", err)
			}
		})
	}
}

func TestComputeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := range 50 {
		w, h := 1+rng.Intn(20), 1+rng.Intn(20)
		samples := make([]float32, w*h*2)
		for i := range samples {
			samples[i] = rng.Float32()
			if trial%5 == 0 {
				// Near-uniform grids stress the variance cancellation.
				samples[i] = 0.3 + rng.Float32()*1e-6
			}
		}

		grid, s, err := Compute(w, h, samples)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		if !(s.Min <= s.Mean && s.Mean <= s.Max) {
			t.Errorf("trial %d: min %v <= mean %v <= max %v violated", trial, s.Min, s.Mean, s.Max)
		}
		if s.StdDev < 0 || math.IsNaN(s.StdDev) {
			t.Errorf("trial %d: stdDev = %v", trial, s.StdDev)
		}

		low := 0
		for i := range w * h {
			nir, red := float64(samples[2*i]), float64(samples[2*i+1])
			if (nir-red)/(nir+red+Epsilon) < LowVigorThreshold {
				low++
			}
		}
		if want := float64(low) / float64(w*h); s.LowNDVIAreaPct != want {
			t.Errorf("trial %d: lowNdviAreaPct = %v, want %v", trial, s.LowNDVIAreaPct, want)
		}
		if s.LowNDVIAreaPct < 0 || s.LowNDVIAreaPct > 1 {
			t.Errorf("trial %d: lowNdviAreaPct out of range: %v", trial, s.LowNDVIAreaPct)
		}
		if len(grid) != w*h {
			t.Errorf("trial %d: grid len %d, want %d", trial, len(grid), w*h)
		}
	}
}

func TestDelta(t *testing.T) {
	if Delta(Summary{Mean: 0.5}, nil) != nil {
		t.Error("expected nil delta without a previous summary")
	}
	d := Delta(Summary{Mean: 0.5}, &Summary{Mean: 0.62})
	if d == nil || math.Abs(*d-(-0.12)) > 1e-12 {
		t.Errorf("delta = %v, want -0.12", d)
	}
}
