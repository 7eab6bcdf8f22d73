package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jwillz7667/CropLens/internal/dataset"
	"github.com/jwillz7667/CropLens/internal/storage"
	"github.com/jwillz7667/CropLens/internal/store"
	"github.com/jwillz7667/CropLens/internal/utils"
	"github.com/jwillz7667/CropLens/output"
	"github.com/spf13/cobra"
)

func newInsightsCmd() *cobra.Command {
	var fieldID string
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "List stored insights for a field, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(s *services) error {
				if _, err := s.store.GetField(cmd.Context(), fieldID, owner); err != nil {
					return err
				}
				records, err := s.store.ListInsights(cmd.Context(), fieldID)
				if err != nil {
					return err
				}
				return printInsights(cmd.OutOrStdout(), records)
			})
		},
	}
	cmd.Flags().StringVarP(&fieldID, "field", "f", "", "Field id")
	cmd.MarkFlagRequired("field")
	return cmd
}

func printInsights(out io.Writer, records []store.InsightRecord) error {
	if len(records) == 0 {
		PrintInfo(out, "No insights found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSEVERITY\tMESSAGE\tRECOMMENDATION")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.CreatedAt.Local().Format("2006-01-02 15:04"), strings.ToUpper(string(r.Severity)), r.Message, r.Recommendation)
	}
	return w.Flush()
}

func newExportCmd() *cobra.Command {
	var fieldID, outputPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a field's analysis history as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(s *services) error {
				analyses, err := fieldHistory(cmd.Context(), s.store, fieldID)
				if err != nil {
					return err
				}
				if outputPath == "" {
					outputPath = cfg.DataPath("exports", fieldID+".csv")
				}
				if err := dataset.SaveAnalysesCSV(outputPath, analyses); err != nil {
					return err
				}
				PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("%d analyses exported to %s", len(analyses), outputPath))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&fieldID, "field", "f", "", "Field id")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "CSV path (default: data/exports/<field>.csv)")
	cmd.MarkFlagRequired("field")
	return cmd
}

func newTimelapseCmd() *cobra.Command {
	var fieldID, outputPath string
	var fps int32
	cmd := &cobra.Command{
		Use:   "timelapse",
		Short: "Stitch a field's NDVI rasters into an MJPEG video, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(s *services) error {
				analyses, err := fieldHistory(cmd.Context(), s.store, fieldID)
				if err != nil {
					return err
				}
				frames, err := loadFrames(cmd.Context(), s.objects, s.cfg.StoragePublicBaseURL, analyses)
				if err != nil {
					return err
				}
				if outputPath == "" {
					outputPath = cfg.DataPath("result", fieldID, "timelapse")
				}
				path, err := output.CreateTimelapse(frames, outputPath, fps)
				if err != nil {
					return err
				}
				PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Timelapse with %d frames written to %s", len(frames), path))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&fieldID, "field", "f", "", "Field id")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Video path (default: data/result/<field>/timelapse.avi)")
	cmd.Flags().Int32Var(&fps, "fps", 2, "Frames per second")
	cmd.MarkFlagRequired("field")
	return cmd
}

// fieldHistory returns the owner's field analyses, oldest first.
func fieldHistory(ctx context.Context, st *store.Store, fieldID string) ([]store.Analysis, error) {
	if _, err := st.GetField(ctx, fieldID, owner); err != nil {
		return nil, err
	}
	analyses, err := st.ListAnalyses(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	return utils.SortByTime(analyses, func(a store.Analysis) time.Time { return a.CreatedAt }, true), nil
}

// loadFrames reads each analysis raster back from object storage. Rasters
// stored elsewhere are skipped.
func loadFrames(ctx context.Context, objects storage.Uploader, baseURL string, analyses []store.Analysis) ([][]byte, error) {
	frames := make([][]byte, 0, len(analyses))
	for _, a := range analyses {
		key, ok := storage.KeyFromURL(baseURL, a.RasterURL)
		if !ok {
			PrintWarning(fmt.Sprintf("Skipping analysis %s: raster %q is not in local storage", a.ID, a.RasterURL))
			continue
		}
		rc, err := objects.Open(ctx, key)
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read raster %s: %w", key, err)
		}
		frames = append(frames, data)
	}
	return frames, nil
}
