package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jwillz7667/CropLens/internal/delivery"
	"github.com/jwillz7667/CropLens/internal/store"
	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	FieldID   string
	Source    string
	UploadKey string
	Date      string
	Workers   int
}

func (o analyzeOptions) request(fieldID string) (delivery.AnalyzeRequest, error) {
	date, err := ParseDate(o.Date)
	if err != nil {
		return delivery.AnalyzeRequest{}, err
	}
	return delivery.AnalyzeRequest{
		FieldID:   fieldID,
		OwnerID:   owner,
		Source:    store.Source(o.Source),
		UploadKey: o.UploadKey,
		Date:      date,
	}, nil
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run an NDVI analysis for one field",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(opts.FieldID)
			if err != nil {
				return err
			}
			return withServices(cmd, func(s *services) error {
				res, err := s.analyze.AnalyzeField(cmd.Context(), req)
				if err != nil {
					return err
				}
				printAnalysis(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&opts.FieldID, "field", "f", "", "Field id")
	cmd.Flags().StringVarP(&opts.Source, "source", "s", string(store.SourceSentinel), "Imagery source: sentinel or upload")
	cmd.Flags().StringVar(&opts.UploadKey, "upload-key", "", "Object key of uploaded imagery (upload source)")
	cmd.Flags().StringVarP(&opts.Date, "date", "d", "", "Start of the imagery window (YYYY-MM-DD or today)")
	cmd.MarkFlagRequired("field")
	return cmd
}

func newAnalyzeAllCmd() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze-all",
		Short: "Run sentinel analyses for every field of the owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(s *services) error {
				fields, err := s.store.ListFields(cmd.Context(), owner)
				if err != nil {
					return fmt.Errorf("failed to list fields: %w", err)
				}
				if len(fields) == 0 {
					PrintWarning("No fields registered for " + owner)
					return nil
				}
				reqs := make([]delivery.AnalyzeRequest, 0, len(fields))
				for _, f := range fields {
					req, err := opts.request(f.ID)
					if err != nil {
						return err
					}
					reqs = append(reqs, req)
				}

				results := s.analyze.AnalyzeFields(cmd.Context(), reqs, opts.Workers, os.Stderr)
				return printBatch(cmd.OutOrStdout(), results)
			})
		},
	}
	opts.Source = string(store.SourceSentinel)
	cmd.Flags().StringVarP(&opts.Date, "date", "d", "", "Start of the imagery window (YYYY-MM-DD or today)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 4, "Fields analyzed in parallel")
	return cmd
}

func printAnalysis(w io.Writer, res delivery.AnalyzeResult) {
	s := res.Summary
	PrintSuccess(w, fmt.Sprintf("Analysis %s stored for field %s", res.ID, res.FieldID))
	fmt.Fprintf(w, "Mean NDVI %.3f (min %.3f, max %.3f, sd %.3f), low vigor %.1f%%, delta %s\n",
		s.Mean, s.Min, s.Max, s.StdDev, s.LowNDVIAreaPct*100, formatDelta(res.AvgNDVIDelta))
	fmt.Fprintf(w, "Raster: %s\n", res.RasterURL)
	for _, in := range res.Insights {
		fmt.Fprintf(w, "[%s] %s\n  %s\n", strings.ToUpper(string(in.Severity)), in.Message, in.Recommendation)
	}
	if res.Weather != nil {
		fmt.Fprintf(w, "Next 3 days: %.1f mm rain, %.1f°C average max\n", res.Weather.RainfallNext3Days, res.Weather.AvgTempNext3Days)
	}
}

// printBatch reports every field and fails when any analysis failed.
func printBatch(out io.Writer, results []delivery.BatchResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FIELD\tMEAN NDVI\tDELTA\tINSIGHTS\tSTATUS")
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "%s\t-\t-\t-\t%s\n", r.Request.FieldID, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%.3f\t%s\t%d\tok\n", r.Request.FieldID, r.Result.Summary.Mean, formatDelta(r.Result.AvgNDVIDelta), len(r.Result.Insights))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(results))
	}
	return nil
}
