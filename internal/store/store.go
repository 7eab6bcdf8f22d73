// Package store persists fields, NDVI analyses and insights in PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jwillz7667/CropLens/internal/insights"
	"github.com/jwillz7667/CropLens/internal/ndvi"
)

var ErrNotFound = errors.New("not found")

type Source string

const (
	SourceUpload   Source = "upload"
	SourceSentinel Source = "sentinel"
)

func (s Source) Valid() bool {
	return s == SourceUpload || s == SourceSentinel
}

type Centroid struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Field struct {
	ID       string          `json:"id"`
	OwnerID  string          `json:"-"`
	Name     string          `json:"name"`
	Acreage  float64         `json:"acreage"`
	Crop     *string         `json:"crop"`
	Centroid Centroid        `json:"centroid"`
	Boundary json.RawMessage `json:"boundaryGeoJson"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Analysis struct {
	ID             string       `json:"id"`
	FieldID        string       `json:"fieldId"`
	RasterURL      string       `json:"ndviRasterUrl"`
	Summary        ndvi.Summary `json:"summaryStats"`
	LowNDVIAreaPct float64      `json:"lowNdviAreaPct"`
	AvgNDVIDelta   *float64     `json:"avgNdviDelta"`
	Source         Source       `json:"source"`
	CreatedAt      time.Time    `json:"generatedAt"`
}

type InsightRecord struct {
	ID      string `json:"id"`
	FieldID string `json:"fieldId"`
	insights.Insight
	CreatedAt time.Time `json:"createdAt"`
}

// Store manages the PostgreSQL pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New connects and applies the schema.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fields (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			acreage DOUBLE PRECISION NOT NULL,
			crop TEXT,
			centroid JSONB NOT NULL,
			boundary_geojson JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS analyses (
			seq BIGSERIAL UNIQUE,
			id TEXT PRIMARY KEY,
			field_id TEXT NOT NULL REFERENCES fields(id) ON DELETE CASCADE,
			ndvi_raster_uri TEXT,
			summary_stats JSONB NOT NULL,
			low_ndvi_area_pct DOUBLE PRECISION NOT NULL,
			avg_ndvi_delta DOUBLE PRECISION,
			source TEXT NOT NULL CHECK (source IN ('upload', 'sentinel')),
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS insights (
			seq BIGSERIAL UNIQUE,
			id TEXT PRIMARY KEY,
			field_id TEXT NOT NULL REFERENCES fields(id) ON DELETE CASCADE,
			severity TEXT NOT NULL CHECK (severity IN ('low', 'medium', 'high')),
			message TEXT NOT NULL,
			recommendation TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS fields_owner_idx ON fields (owner_id);
		CREATE INDEX IF NOT EXISTS analyses_field_idx ON analyses (field_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS insights_field_idx ON insights (field_id, created_at DESC);
	`)
	return err
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) CreateField(ctx context.Context, f Field) (Field, error) {
	now := s.now().UTC()
	f.ID = uuid.NewString()
	f.CreatedAt, f.UpdatedAt = now, now
	if len(f.Boundary) == 0 {
		f.Boundary = json.RawMessage("null")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO fields (id, owner_id, name, acreage, crop, centroid, boundary_geojson, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, f.ID, f.OwnerID, f.Name, f.Acreage, f.Crop, f.Centroid, string(f.Boundary), f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return Field{}, err
	}
	return f, nil
}

const fieldColumns = `id, owner_id, name, acreage, crop, centroid, boundary_geojson, created_at, updated_at`

func scanField(row pgx.Row) (Field, error) {
	var f Field
	var boundary []byte
	err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &f.Acreage, &f.Crop, &f.Centroid, &boundary, &f.CreatedAt, &f.UpdatedAt)
	f.Boundary = boundary
	return f, err
}

// GetField returns the field only when ownerID owns it.
func (s *Store) GetField(ctx context.Context, id, ownerID string) (Field, error) {
	f, err := scanField(s.pool.QueryRow(ctx,
		`SELECT `+fieldColumns+` FROM fields WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Field{}, fmt.Errorf("field %s: %w", id, ErrNotFound)
	}
	return f, err
}

func (s *Store) ListFields(ctx context.Context, ownerID string) ([]Field, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fieldColumns+` FROM fields WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := []Field{}
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

const analysisColumns = `id, field_id, COALESCE(ndvi_raster_uri, ''), summary_stats, low_ndvi_area_pct, avg_ndvi_delta, source, created_at`

func scanAnalysis(row pgx.Row) (Analysis, error) {
	var a Analysis
	var source string
	err := row.Scan(&a.ID, &a.FieldID, &a.RasterURL, &a.Summary, &a.LowNDVIAreaPct, &a.AvgNDVIDelta, &source, &a.CreatedAt)
	a.Source = Source(source)
	return a, err
}

// LatestAnalysis returns the newest analysis of a field, or ErrNotFound.
func (s *Store) LatestAnalysis(ctx context.Context, fieldID string) (Analysis, error) {
	a, err := scanAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE field_id = $1 ORDER BY created_at DESC, seq DESC LIMIT 1`, fieldID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Analysis{}, fmt.Errorf("analysis for field %s: %w", fieldID, ErrNotFound)
	}
	return a, err
}

// ListAnalyses returns a field's analyses, newest first.
func (s *Store) ListAnalyses(ctx context.Context, fieldID string) ([]Analysis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE field_id = $1 ORDER BY created_at DESC, seq DESC`, fieldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

func (s *Store) InsertAnalysis(ctx context.Context, a Analysis) (Analysis, error) {
	inserted, _, err := s.InsertAnalysisWithInsights(ctx, a, nil)
	return inserted, err
}

// InsertAnalysisWithInsights stores an analysis and the insights derived
// from it in one transaction. Insights keep their derivation order and
// share the analysis timestamp. On error nothing is written.
func (s *Store) InsertAnalysisWithInsights(ctx context.Context, a Analysis, derived []insights.Insight) (Analysis, []InsightRecord, error) {
	if !a.Source.Valid() {
		return Analysis{}, nil, fmt.Errorf("unknown analysis source %q", a.Source)
	}
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}

	var rasterURL *string
	if a.RasterURL != "" {
		rasterURL = &a.RasterURL
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Analysis{}, nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO analyses (id, field_id, ndvi_raster_uri, summary_stats, low_ndvi_area_pct, avg_ndvi_delta, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.FieldID, rasterURL, a.Summary, a.LowNDVIAreaPct, a.AvgNDVIDelta, string(a.Source), a.CreatedAt)
	if err != nil {
		return Analysis{}, nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE fields SET updated_at = $2 WHERE id = $1`, a.FieldID, a.CreatedAt); err != nil {
		return Analysis{}, nil, err
	}

	records := make([]InsightRecord, 0, len(derived))
	if len(derived) > 0 {
		batch := &pgx.Batch{}
		for _, in := range derived {
			rec := InsightRecord{ID: uuid.NewString(), FieldID: a.FieldID, Insight: in, CreatedAt: a.CreatedAt}
			batch.Queue(`
				INSERT INTO insights (id, field_id, severity, message, recommendation, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, rec.ID, a.FieldID, string(in.Severity), in.Message, in.Recommendation, a.CreatedAt)
			records = append(records, rec)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return Analysis{}, nil, fmt.Errorf("failed to store insights: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Analysis{}, nil, err
	}
	return a, records, nil
}

// ListInsights returns newest batches first, each batch in derivation order.
func (s *Store) ListInsights(ctx context.Context, fieldID string) ([]InsightRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, field_id, severity, message, recommendation, created_at
		FROM insights WHERE field_id = $1 ORDER BY created_at DESC, seq ASC
	`, fieldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []InsightRecord{}
	for rows.Next() {
		var rec InsightRecord
		var severity string
		if err := rows.Scan(&rec.ID, &rec.FieldID, &severity, &rec.Message, &rec.Recommendation, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Severity = insights.Severity(severity)
		records = append(records, rec)
	}
	return records, rows.Err()
}
