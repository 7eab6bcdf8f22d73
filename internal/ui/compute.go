package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwillz7667/CropLens/internal/delivery"
	"github.com/jwillz7667/CropLens/internal/insights"
	"github.com/jwillz7667/CropLens/internal/ndvi"
	"github.com/jwillz7667/CropLens/internal/raster"
	"github.com/spf13/cobra"
)

type computeOptions struct {
	Input    string
	Previous string
	Output   string
}

// computeReport is written next to the PNG. A report can be passed back as
// --previous on the next run.
type computeReport struct {
	Width        int                `json:"width"`
	Height       int                `json:"height"`
	SummaryStats ndvi.Summary       `json:"summaryStats"`
	AvgNDVIDelta *float64           `json:"avgNdviDelta"`
	Insights     []insights.Insight `json:"insights"`
	RasterPath   string             `json:"rasterPath"`
}

func newComputeCmd() *cobra.Command {
	var opts computeOptions
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute NDVI for a local two-band raster (NIR, RED)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompute(opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Path to a GeoTIFF with NIR and RED bands")
	cmd.Flags().StringVarP(&opts.Previous, "previous", "p", "", "Report JSON from an earlier run, used for the delta and insights")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output path without extension (default: next to the input)")
	cmd.MarkFlagRequired("input")
	return cmd
}

func runCompute(opts computeOptions, w io.Writer) error {
	f, err := os.Open(opts.Input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	view, err := raster.ViewReader(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	var previous *ndvi.Summary
	if opts.Previous != "" {
		prev, err := readReport(opts.Previous)
		if err != nil {
			return err
		}
		previous = &prev.SummaryStats
	}

	result, err := delivery.ComputeNDVI(view)
	if err != nil {
		return err
	}
	derived, err := insights.Derive(result.Summary, previous)
	if err != nil {
		return err
	}

	base := opts.Output
	if base == "" {
		base = strings.TrimSuffix(opts.Input, filepath.Ext(opts.Input)) + "_ndvi"
	}
	if err := os.MkdirAll(filepath.Dir(base), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	pngPath := base + ".png"
	if err := os.WriteFile(pngPath, result.Raster, 0o644); err != nil {
		return fmt.Errorf("failed to write NDVI image: %w", err)
	}

	report := computeReport{
		Width:        result.Width,
		Height:       result.Height,
		SummaryStats: result.Summary,
		AvgNDVIDelta: ndvi.Delta(result.Summary, previous),
		Insights:     derived,
		RasterPath:   pngPath,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".json", data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	s := result.Summary
	PrintSuccess(w, fmt.Sprintf("NDVI %dx%d: mean %.3f, min %.3f, max %.3f, low vigor %.1f%%, delta %s",
		result.Width, result.Height, s.Mean, s.Min, s.Max, s.LowNDVIAreaPct*100, formatDelta(report.AvgNDVIDelta)))
	for _, in := range derived {
		fmt.Fprintf(w, "[%s] %s\n  %s\n", strings.ToUpper(string(in.Severity)), in.Message, in.Recommendation)
	}
	fmt.Fprintf(w, "Image: %s\nReport: %s\n", pngPath, base+".json")
	return nil
}

func readReport(path string) (computeReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return computeReport{}, fmt.Errorf("failed to read previous report: %w", err)
	}
	var r computeReport
	if err := json.Unmarshal(data, &r); err != nil {
		return computeReport{}, fmt.Errorf("failed to parse previous report: %w", err)
	}
	if r.Width == 0 || r.Height == 0 {
		return computeReport{}, errors.New("previous report has no raster size")
	}
	return r, nil
}
