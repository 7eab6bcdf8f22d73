package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jwillz7667/CropLens/internal/insights"
	"github.com/jwillz7667/CropLens/internal/notification"
	"github.com/jwillz7667/CropLens/internal/raster"
	"github.com/jwillz7667/CropLens/internal/raster/rastertest"
	"github.com/jwillz7667/CropLens/internal/sentinel"
	"github.com/jwillz7667/CropLens/internal/storage"
	"github.com/jwillz7667/CropLens/internal/store"
	"github.com/jwillz7667/CropLens/internal/weather"
)

func TestComputeNDVIRoundTrip(t *testing.T) {
	scene, err := rastertest.Uniform(t.TempDir(), 5, 3, 0.8, 0.2)
	if err != nil {
		t.Fatal(err)
	}

	res, err := ComputeNDVI(raster.ViewBytes(scene))
	if err != nil {
		t.Fatalf("ComputeNDVI failed: %v", err)
	}
	if res.Width != 5 || res.Height != 3 {
		t.Errorf("size = %dx%d, want 5x3", res.Width, res.Height)
	}
	if math.Abs(res.Summary.Mean-0.5999994) > 1e-6 || res.Summary.LowNDVIAreaPct != 0 {
		t.Errorf("unexpected summary %+v", res.Summary)
	}

	img, err := png.Decode(bytes.NewReader(res.Raster))
	if err != nil {
		t.Fatalf("raster is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 5 || b.Dy() != 3 {
		t.Errorf("PNG is %dx%d, want 5x3", b.Dx(), b.Dy())
	}
}

func TestComputeNDVIPropagatesDecodeErrors(t *testing.T) {
	_, err := ComputeNDVI(raster.ViewBytes([]byte("not a tiff")))
	if !raster.IsDecodeError(err) {
		t.Errorf("err = %v, want DecodeError", err)
	}
}

type memStore struct {
	mu       sync.Mutex
	fields   map[string]store.Field
	analyses []store.Analysis
	insights map[string][]insights.Insight

	insertErr error
}

func newMemStore(fields ...store.Field) *memStore {
	m := &memStore{fields: map[string]store.Field{}, insights: map[string][]insights.Insight{}}
	for _, f := range fields {
		m.fields[f.ID] = f
	}
	return m
}

func (m *memStore) GetField(_ context.Context, id, owner string) (store.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fields[id]
	if !ok || f.OwnerID != owner {
		return store.Field{}, fmt.Errorf("field %s: %w", id, store.ErrNotFound)
	}
	return f, nil
}

func (m *memStore) LatestAnalysis(_ context.Context, fieldID string) (store.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.analyses) - 1; i >= 0; i-- {
		if m.analyses[i].FieldID == fieldID {
			return m.analyses[i], nil
		}
	}
	return store.Analysis{}, store.ErrNotFound
}

func (m *memStore) InsertAnalysisWithInsights(_ context.Context, a store.Analysis, derived []insights.Insight) (store.Analysis, []store.InsightRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return store.Analysis{}, nil, m.insertErr
	}
	a.ID = fmt.Sprintf("a%d", len(m.analyses)+1)
	m.analyses = append(m.analyses, a)
	m.insights[a.FieldID] = append(m.insights[a.FieldID], derived...)
	return a, nil, nil
}

type fakeScenes struct {
	mu    sync.Mutex
	scene []byte
	calls int
	last  sentinel.SceneRequest
}

func (f *fakeScenes) RequestScene(_ context.Context, req sentinel.SceneRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	return f.scene, nil
}

type fakeWeather struct{ err error }

func (f fakeWeather) FetchOutlook(context.Context, float64, float64) (weather.Outlook, error) {
	return weather.Outlook{RainfallNext3Days: 4, AvgTempNext3Days: 27}, f.err
}

type recorder struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (r *recorder) Notify(_ context.Context, a notification.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

var boundary = json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[0.01,0],[0.01,0.01],[0,0.01],[0,0]]]}`)

func newService(t *testing.T, scene []byte) (*Service, *memStore, *fakeScenes, *recorder) {
	t.Helper()
	ms := newMemStore(store.Field{ID: "f1", OwnerID: "owner", Name: "North block", Boundary: boundary, Centroid: store.Centroid{Lat: 0.005, Lng: 0.005}})
	scenes := &fakeScenes{scene: scene}
	rec := &recorder{}
	svc := &Service{
		Store:    ms,
		Objects:  storage.NewLocalStore(t.TempDir(), "https://cdn.example.com"),
		Scenes:   scenes,
		Notifier: rec,
		Weather:  fakeWeather{},
		now:      func() time.Time { return time.UnixMilli(1714557600000) },
	}
	return svc, ms, scenes, rec
}

func TestAnalyzeFieldSentinel(t *testing.T) {
	healthy, err := rastertest.Uniform(t.TempDir(), 4, 4, 0.8, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	svc, ms, scenes, rec := newService(t, healthy)
	ctx := context.Background()

	first, err := svc.AnalyzeField(ctx, AnalyzeRequest{FieldID: "f1", OwnerID: "owner"})
	if err != nil {
		t.Fatalf("AnalyzeField failed: %v", err)
	}
	if first.AvgNDVIDelta != nil {
		t.Errorf("first analysis has a delta: %v", *first.AvgNDVIDelta)
	}
	if first.RasterURL != "https://cdn.example.com/ndvi/f1/1714557600000.png" {
		t.Errorf("RasterURL = %q", first.RasterURL)
	}
	if first.Source != store.SourceSentinel || len(first.Insights) != 0 || len(rec.alerts) != 0 {
		t.Errorf("unexpected first result %+v (alerts %d)", first, len(rec.alerts))
	}
	if first.Weather == nil || first.Weather.AvgTempNext3Days != 27 {
		t.Errorf("weather = %+v", first.Weather)
	}
	if scenes.calls != 1 || scenes.last.Geometry == nil {
		t.Errorf("scene fetcher calls %d, request %+v", scenes.calls, scenes.last)
	}

	// A stressed canopy on the second run: delta ~ -0.6, every pixel low.
	stressed, err := rastertest.Uniform(t.TempDir(), 4, 4, 0.2, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	scenes.scene = stressed

	second, err := svc.AnalyzeField(ctx, AnalyzeRequest{FieldID: "f1", OwnerID: "owner"})
	if err != nil {
		t.Fatalf("AnalyzeField failed: %v", err)
	}
	if second.AvgNDVIDelta == nil || math.Abs(*second.AvgNDVIDelta-(0-first.Summary.Mean)) > 1e-12 {
		t.Errorf("delta = %v, want %v", second.AvgNDVIDelta, -first.Summary.Mean)
	}
	if len(ms.analyses) != 2 {
		t.Fatalf("stored %d analyses, want 2", len(ms.analyses))
	}

	var got []string
	for _, in := range ms.insights["f1"] {
		got = append(got, in.Message)
	}
	want := []string{
		"Significant low NDVI area detected",
		"NDVI dropped sharply vs last run",
		"Overall vigor is trending low",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("stored insights = %v, want %v", got, want)
	}
	if len(rec.alerts) != 1 || rec.alerts[0].Severity != insights.SeverityHigh {
		t.Errorf("alerts = %+v", rec.alerts)
	}
}

func TestAnalyzeFieldUpload(t *testing.T) {
	scene, err := rastertest.Uniform(t.TempDir(), 2, 2, 0.5, 0.4)
	if err != nil {
		t.Fatal(err)
	}
	svc, ms, scenes, _ := newService(t, nil)
	svc.Weather = fakeWeather{err: errors.New("open-meteo down")}
	ctx := context.Background()

	key := storage.UploadKey("f1", "scene.tif", time.UnixMilli(1))
	if _, err := svc.Objects.Upload(ctx, key, scene, "image/tiff"); err != nil {
		t.Fatal(err)
	}

	res, err := svc.AnalyzeField(ctx, AnalyzeRequest{FieldID: "f1", OwnerID: "owner", Source: store.SourceUpload, UploadKey: key})
	if err != nil {
		t.Fatalf("AnalyzeField failed: %v", err)
	}
	if scenes.calls != 0 {
		t.Error("upload analysis must not hit the imagery provider")
	}
	if res.Weather != nil {
		t.Error("failed weather lookup should leave Weather empty")
	}
	if len(ms.analyses) != 1 || ms.analyses[0].Source != store.SourceUpload {
		t.Errorf("stored analyses %+v", ms.analyses)
	}
}

func TestAnalyzeFieldErrors(t *testing.T) {
	svc, ms, _, _ := newService(t, []byte("garbage"))
	ctx := context.Background()

	tests := []struct {
		name  string
		req   AnalyzeRequest
		check func(error) bool
	}{
		{
			name:  "upload without key",
			req:   AnalyzeRequest{FieldID: "f1", OwnerID: "owner", Source: store.SourceUpload},
			check: IsValidation,
		},
		{
			name:  "unknown source",
			req:   AnalyzeRequest{FieldID: "f1", OwnerID: "owner", Source: "drone"},
			check: IsValidation,
		},
		{
			name:  "other owner",
			req:   AnalyzeRequest{FieldID: "f1", OwnerID: "intruder"},
			check: func(err error) bool { return errors.Is(err, store.ErrNotFound) },
		},
		{
			name:  "missing upload",
			req:   AnalyzeRequest{FieldID: "f1", OwnerID: "owner", Source: store.SourceUpload, UploadKey: "fields/f1/nope.tif"},
			check: func(err error) bool { return errors.Is(err, storage.ErrNotFound) },
		},
		{
			name:  "undecodable scene",
			req:   AnalyzeRequest{FieldID: "f1", OwnerID: "owner"},
			check: raster.IsDecodeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AnalyzeField(ctx, tt.req)
			if err == nil || !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
	if len(ms.analyses) != 0 {
		t.Errorf("failed analyses were persisted: %+v", ms.analyses)
	}
}

type memSceneCache struct {
	data map[string][]byte
}

func (m *memSceneCache) Get(fieldID string, day time.Time) ([]byte, bool, error) {
	b, ok := m.data[fieldID+day.Format("2006-01-02")]
	return b, ok, nil
}

func (m *memSceneCache) Put(fieldID string, day time.Time, data []byte) error {
	m.data[fieldID+day.Format("2006-01-02")] = data
	return nil
}

func TestAnalyzeFieldUsesSceneCache(t *testing.T) {
	scene, err := rastertest.Uniform(t.TempDir(), 2, 2, 0.6, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	svc, _, scenes, _ := newService(t, scene)
	svc.SceneCache = &memSceneCache{data: map[string][]byte{}}
	date := time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)

	for range 2 {
		if _, err := svc.AnalyzeField(context.Background(), AnalyzeRequest{FieldID: "f1", OwnerID: "owner", Date: &date}); err != nil {
			t.Fatalf("AnalyzeField failed: %v", err)
		}
	}
	if scenes.calls != 1 {
		t.Errorf("imagery fetched %d times, want 1", scenes.calls)
	}
	if !scenes.last.From.Equal(date) {
		t.Errorf("scene window starts %v, want %v", scenes.last.From, date)
	}
}

func TestAnalyzeFieldRefetchesUndecodableScenes(t *testing.T) {
	scene, err := rastertest.Uniform(t.TempDir(), 2, 2, 0.6, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	svc, ms, scenes, _ := newService(t, []byte("truncated"))
	cache := &memSceneCache{data: map[string][]byte{}}
	svc.SceneCache = cache
	date := time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)
	req := AnalyzeRequest{FieldID: "f1", OwnerID: "owner", Date: &date}
	ctx := context.Background()

	if _, err := svc.AnalyzeField(ctx, req); !raster.IsDecodeError(err) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
	if len(cache.data) != 0 {
		t.Error("an undecodable scene was cached")
	}

	scenes.scene = scene
	if _, err := svc.AnalyzeField(ctx, req); err != nil {
		t.Fatalf("retry on the same day failed: %v", err)
	}
	if scenes.calls != 2 || len(ms.analyses) != 1 {
		t.Errorf("fetches = %d, analyses = %d; want 2 and 1", scenes.calls, len(ms.analyses))
	}

	// An entry that stopped decoding is replaced by a fresh fetch.
	cache.data["f1"+date.Format("2006-01-02")] = []byte("corrupt")
	if _, err := svc.AnalyzeField(ctx, req); err != nil {
		t.Fatalf("analysis over a corrupt cache entry failed: %v", err)
	}
	if scenes.calls != 3 || !bytes.Equal(cache.data["f1"+date.Format("2006-01-02")], scene) {
		t.Errorf("fetches = %d, cache not refreshed", scenes.calls)
	}
}

func TestAnalyzeFieldPersistsNothingOnStoreFailure(t *testing.T) {
	scene, err := rastertest.Uniform(t.TempDir(), 2, 2, 0.2, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	svc, ms, _, rec := newService(t, scene)
	ms.insertErr = errors.New("insight batch rejected")

	if _, err := svc.AnalyzeField(context.Background(), AnalyzeRequest{FieldID: "f1", OwnerID: "owner"}); err == nil {
		t.Fatal("expected the store error")
	}
	if len(ms.analyses) != 0 || len(ms.insights["f1"]) != 0 {
		t.Errorf("partial result stored: %d analyses, %d insights", len(ms.analyses), len(ms.insights["f1"]))
	}
	if len(rec.alerts) != 0 {
		t.Error("alerts sent for an analysis that was not stored")
	}
	if _, err := ms.LatestAnalysis(context.Background(), "f1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("next run would compare against %v", err)
	}
}

func TestAnalyzeFields(t *testing.T) {
	scene, err := rastertest.Uniform(t.TempDir(), 2, 2, 0.7, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	svc, ms, _, _ := newService(t, scene)
	ms.fields["f2"] = store.Field{ID: "f2", OwnerID: "owner", Boundary: boundary}

	reqs := []AnalyzeRequest{
		{FieldID: "f1", OwnerID: "owner"},
		{FieldID: "missing", OwnerID: "owner"},
		{FieldID: "f2", OwnerID: "owner"},
	}
	var progress bytes.Buffer
	results := svc.AnalyzeFields(context.Background(), reqs, 2, &progress)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, r := range results {
		if r.Request.FieldID != reqs[i].FieldID {
			t.Errorf("result %d is for %s, want %s", i, r.Request.FieldID, reqs[i].FieldID)
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, store.ErrNotFound) {
		t.Errorf("missing field err = %v", results[1].Err)
	}
	if len(ms.analyses) != 2 {
		t.Errorf("stored %d analyses, want 2", len(ms.analyses))
	}
}
