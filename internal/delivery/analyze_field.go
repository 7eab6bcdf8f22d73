package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwillz7667/CropLens/internal/insights"
	"github.com/jwillz7667/CropLens/internal/ndvi"
	"github.com/jwillz7667/CropLens/internal/notification"
	"github.com/jwillz7667/CropLens/internal/raster"
	"github.com/jwillz7667/CropLens/internal/sentinel"
	"github.com/jwillz7667/CropLens/internal/storage"
	"github.com/jwillz7667/CropLens/internal/store"
	"github.com/jwillz7667/CropLens/internal/utils"
	"github.com/jwillz7667/CropLens/internal/weather"
	"github.com/mdobak/go-xerrors"
	"golang.org/x/sync/errgroup"
)

type FieldStore interface {
	GetField(ctx context.Context, id, ownerID string) (store.Field, error)
	LatestAnalysis(ctx context.Context, fieldID string) (store.Analysis, error)
	InsertAnalysisWithInsights(ctx context.Context, a store.Analysis, derived []insights.Insight) (store.Analysis, []store.InsightRecord, error)
}

type SceneFetcher interface {
	RequestScene(ctx context.Context, req sentinel.SceneRequest) ([]byte, error)
}

type SceneCache interface {
	Get(fieldID string, day time.Time) ([]byte, bool, error)
	Put(fieldID string, day time.Time, data []byte) error
}

type WeatherFetcher interface {
	FetchOutlook(ctx context.Context, lat, lng float64) (weather.Outlook, error)
}

// ValidationError reports a request that can never succeed as sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Service runs field analyses. Scenes, SceneCache, Notifier and Weather are
// optional.
type Service struct {
	Store      FieldStore
	Objects    storage.Uploader
	Scenes     SceneFetcher
	SceneCache SceneCache
	Notifier   notification.Notifier
	Weather    WeatherFetcher

	now func() time.Time
}

type AnalyzeRequest struct {
	FieldID   string       `json:"fieldId"`
	OwnerID   string       `json:"-"`
	Source    store.Source `json:"source"`
	UploadKey string       `json:"uploadKey,omitempty"`
	// Date starts the imagery window for sentinel analyses.
	Date *time.Time `json:"date,omitempty"`
}

type AnalyzeResult struct {
	store.Analysis
	Insights []insights.Insight `json:"insights"`
	Weather  *weather.Outlook   `json:"weather,omitempty"`
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Service) AnalyzeField(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error) {
	logger := utils.GetLogger()
	if req.Source == "" {
		req.Source = store.SourceSentinel
	}
	if !req.Source.Valid() {
		return AnalyzeResult{}, &ValidationError{Reason: fmt.Sprintf("unknown source %q", req.Source)}
	}
	if req.Source == store.SourceUpload && req.UploadKey == "" {
		return AnalyzeResult{}, &ValidationError{Reason: "uploadKey required for upload source"}
	}

	field, err := s.Store.GetField(ctx, req.FieldID, req.OwnerID)
	if err != nil {
		return AnalyzeResult{}, err
	}

	computed, err := s.computeScene(ctx, field, req)
	if err != nil {
		return AnalyzeResult{}, err
	}

	var previous *ndvi.Summary
	last, err := s.Store.LatestAnalysis(ctx, field.ID)
	switch {
	case err == nil:
		previous = &last.Summary
	case !errors.Is(err, store.ErrNotFound):
		return AnalyzeResult{}, err
	}

	derived, err := insights.Derive(computed.Summary, previous)
	if err != nil {
		return AnalyzeResult{}, err
	}

	now := s.clock()
	rasterURL, err := s.Objects.Upload(ctx, storage.RasterKey(field.ID, now), computed.Raster, "image/png")
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("failed to upload NDVI raster: %w", err)
	}

	inserted, _, err := s.Store.InsertAnalysisWithInsights(ctx, store.Analysis{
		FieldID:        field.ID,
		RasterURL:      rasterURL,
		Summary:        computed.Summary,
		LowNDVIAreaPct: computed.Summary.LowNDVIAreaPct,
		AvgNDVIDelta:   ndvi.Delta(computed.Summary, previous),
		Source:         req.Source,
	}, derived)
	if err != nil {
		return AnalyzeResult{}, err
	}

	result := AnalyzeResult{Analysis: inserted, Insights: derived}

	// Alerts and the weather lookup are best effort once the analysis is stored.
	var g errgroup.Group
	if len(derived) > 0 && s.Notifier != nil {
		g.Go(func() error {
			if err := s.Notifier.Notify(ctx, notification.InsightAlert(field.Name, derived)); err != nil {
				logger.WarnContext(ctx, "insight alert failed", slog.String("fieldId", field.ID), slog.Any("error", xerrors.New(err)))
			}
			return nil
		})
	}
	if s.Weather != nil {
		g.Go(func() error {
			outlook, err := s.Weather.FetchOutlook(ctx, field.Centroid.Lat, field.Centroid.Lng)
			if err != nil {
				logger.WarnContext(ctx, "Weather lookup failed", slog.String("fieldId", field.ID), slog.Any("error", xerrors.New(err)))
				return nil
			}
			result.Weather = &outlook
			return nil
		})
	}
	g.Wait()

	logger.InfoContext(ctx, "analysis_created",
		slog.String("fieldId", field.ID),
		slog.String("source", string(req.Source)),
		slog.Float64("avgNdvi", computed.Summary.Mean),
		slog.Int("insights", len(derived)),
	)
	return result, nil
}

// computeScene fetches the field's imagery and runs the NDVI core on it.
// Sentinel scenes reach the cache only once they decode, and a cached scene
// that no longer decodes is fetched again.
func (s *Service) computeScene(ctx context.Context, field store.Field, req AnalyzeRequest) (Result, error) {
	if req.Source == store.SourceUpload {
		scene, err := s.openUpload(ctx, req.UploadKey)
		if err != nil {
			return Result{}, err
		}
		return ComputeNDVI(scene)
	}

	if s.Scenes == nil {
		return Result{}, errors.New("sentinel imagery is not configured")
	}
	geometry, err := sentinel.ParseGeometry(field.Boundary)
	if err != nil {
		return Result{}, &ValidationError{Reason: err.Error()}
	}

	sceneReq := sentinel.SceneRequest{Geometry: geometry}
	day := s.clock()
	if req.Date != nil {
		sceneReq.From = *req.Date
		day = *req.Date
	}

	logger := utils.GetLogger()
	if s.SceneCache != nil {
		if cached, ok, err := s.SceneCache.Get(field.ID, day); err == nil && ok {
			res, err := ComputeNDVI(raster.ViewBytes(cached))
			if err == nil {
				return res, nil
			}
			logger.WarnContext(ctx, "cached scene did not decode, fetching again",
				slog.String("fieldId", field.ID), slog.Any("error", xerrors.New(err)))
		}
	}

	scene, err := s.Scenes.RequestScene(ctx, sceneReq)
	if err != nil {
		return Result{}, err
	}
	res, err := ComputeNDVI(raster.ViewBytes(scene))
	if err != nil {
		return Result{}, err
	}
	if s.SceneCache != nil {
		if err := s.SceneCache.Put(field.ID, day, scene); err != nil {
			logger.WarnContext(ctx, "failed to cache scene", slog.Any("error", xerrors.New(err)))
		}
	}
	return res, nil
}

func (s *Service) openUpload(ctx context.Context, key string) (raster.View, error) {
	rc, err := s.Objects.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidKey) {
			return raster.View{}, &ValidationError{Reason: err.Error()}
		}
		return raster.View{}, fmt.Errorf("failed to fetch uploaded imagery: %w", err)
	}
	defer rc.Close()
	return raster.ViewReader(rc)
}
