package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/jwillz7667/CropLens/internal/store"
)

// AnalysisRow is the flat CSV view of a stored analysis.
type AnalysisRow struct {
	FieldID        string    `csv:"field_id"`
	AnalysisID     string    `csv:"analysis_id"`
	CreatedAt      time.Time `csv:"created_at"`
	Source         string    `csv:"source"`
	Mean           float64   `csv:"ndvi_mean"`
	Min            float64   `csv:"ndvi_min"`
	Max            float64   `csv:"ndvi_max"`
	StdDev         float64   `csv:"ndvi_std_dev"`
	LowNDVIAreaPct float64   `csv:"low_ndvi_area_pct"`
	AvgNDVIDelta   string    `csv:"avg_ndvi_delta"`
	RasterURL      string    `csv:"ndvi_raster_url"`
}

func NewAnalysisRow(a store.Analysis) AnalysisRow {
	row := AnalysisRow{
		FieldID:        a.FieldID,
		AnalysisID:     a.ID,
		CreatedAt:      a.CreatedAt.UTC(),
		Source:         string(a.Source),
		Mean:           a.Summary.Mean,
		Min:            a.Summary.Min,
		Max:            a.Summary.Max,
		StdDev:         a.Summary.StdDev,
		LowNDVIAreaPct: a.LowNDVIAreaPct,
		RasterURL:      a.RasterURL,
	}
	if a.AvgNDVIDelta != nil {
		row.AvgNDVIDelta = fmt.Sprintf("%g", *a.AvgNDVIDelta)
	}
	return row
}

func WriteAnalysesCSV(w io.Writer, analyses []store.Analysis) error {
	rows := make([]*AnalysisRow, 0, len(analyses))
	for _, a := range analyses {
		row := NewAnalysisRow(a)
		rows = append(rows, &row)
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write analyses CSV: %w", err)
	}
	return nil
}

// SaveAnalysesCSV writes the export to path, creating parent folders.
func SaveAnalysesCSV(path string, analyses []store.Analysis) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteAnalysesCSV(file, analyses)
}

func ReadAnalysesCSV(r io.Reader) ([]AnalysisRow, error) {
	var rows []AnalysisRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to read analyses CSV: %w", err)
	}
	return rows, nil
}
