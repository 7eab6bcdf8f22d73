package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/jwillz7667/CropLens/internal/sentinel"
	"github.com/jwillz7667/CropLens/internal/store"
	"github.com/jwillz7667/CropLens/output"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
)

type fieldOptions struct {
	Name     string
	Acreage  float64
	Crop     string
	Boundary string
	Plot     string
}

func newFieldsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Manage fields",
	}

	var opts fieldOptions
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a field from a GeoJSON boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(s *services) error {
				f, err := addField(cmd.Context(), s.store, owner, opts)
				if err != nil {
					return err
				}
				PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Field %s created (%s)", f.Name, f.ID))
				return nil
			})
		},
	}
	add.Flags().StringVar(&opts.Name, "name", "", "Field name")
	add.Flags().Float64Var(&opts.Acreage, "acreage", 0, "Field size in acres")
	add.Flags().StringVar(&opts.Crop, "crop", "", "Crop planted")
	add.Flags().StringVar(&opts.Boundary, "boundary", "", "GeoJSON file with the field boundary")
	add.Flags().StringVar(&opts.Plot, "plot", "", "plot_id to pick from a FeatureCollection")
	add.MarkFlagRequired("name")
	add.MarkFlagRequired("boundary")

	list := &cobra.Command{
		Use:   "list",
		Short: "List fields with their latest analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(s *services) error {
				return listFields(cmd.Context(), s.store, owner, cmd.OutOrStdout())
			})
		},
	}

	var geojsonPath string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every field with its latest NDVI figures as GeoJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(s *services) error {
				snapshots, err := fieldSnapshots(cmd.Context(), s.store, owner)
				if err != nil {
					return err
				}
				if geojsonPath == "" {
					geojsonPath = cfg.DataPath("result", owner+"_fields")
				}
				path, err := output.CreateFieldsGeoJSON(snapshots, geojsonPath)
				if err != nil {
					return err
				}
				PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("%d fields written to %s", len(snapshots), path))
				return nil
			})
		},
	}
	export.Flags().StringVarP(&geojsonPath, "output", "o", "", "GeoJSON path (default: data/result/<owner>_fields.geojson)")

	cmd.AddCommand(add, list, export)
	return cmd
}

func fieldSnapshots(ctx context.Context, st *store.Store, ownerID string) ([]output.FieldSnapshot, error) {
	fields, err := st.ListFields(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	snapshots := make([]output.FieldSnapshot, 0, len(fields))
	for _, f := range fields {
		snap := output.FieldSnapshot{Field: f}
		latest, err := st.LatestAnalysis(ctx, f.ID)
		switch {
		case err == nil:
			snap.Latest = &latest
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

type fieldCreator interface {
	CreateField(ctx context.Context, f store.Field) (store.Field, error)
}

// loadBoundary reads a boundary file. With plotID the file is a collection
// and the feature whose plot_id matches is used.
func loadBoundary(path, plotID string) (orb.Geometry, error) {
	if plotID != "" {
		return sentinel.LoadFieldGeometry(path, plotID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundary: %w", err)
	}
	return sentinel.ParseGeometry(data)
}

func addField(ctx context.Context, fc fieldCreator, ownerID string, opts fieldOptions) (store.Field, error) {
	if len(opts.Name) < 2 {
		return store.Field{}, fmt.Errorf("name must be at least 2 characters")
	}
	if opts.Acreage <= 0 {
		return store.Field{}, fmt.Errorf("acreage must be positive")
	}
	g, err := loadBoundary(opts.Boundary, opts.Plot)
	if err != nil {
		return store.Field{}, err
	}
	lat, lng, err := sentinel.Centroid(g)
	if err != nil {
		return store.Field{}, err
	}
	boundary, err := json.Marshal(geojson.NewGeometry(g))
	if err != nil {
		return store.Field{}, err
	}

	f := store.Field{
		OwnerID:  ownerID,
		Name:     opts.Name,
		Acreage:  opts.Acreage,
		Centroid: store.Centroid{Lat: lat, Lng: lng},
		Boundary: boundary,
	}
	if opts.Crop != "" {
		f.Crop = &opts.Crop
	}
	return fc.CreateField(ctx, f)
}

func listFields(ctx context.Context, st *store.Store, ownerID string, out io.Writer) error {
	fields, err := st.ListFields(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to list fields: %w", err)
	}
	if len(fields) == 0 {
		PrintInfo(out, "No fields found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tACRES\tCROP\tMEAN NDVI\tDELTA\tUPDATED")
	fmt.Fprintln(w, "--\t----\t-----\t----\t---------\t-----\t-------")
	for _, f := range fields {
		crop := "-"
		if f.Crop != nil {
			crop = *f.Crop
		}
		mean, delta := "-", "-"
		if a, err := st.LatestAnalysis(ctx, f.ID); err == nil {
			mean = fmt.Sprintf("%.3f", a.Summary.Mean)
			delta = formatDelta(a.AvgNDVIDelta)
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\t%s\t%s\n", f.ID, f.Name, f.Acreage, crop, mean, delta, f.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
