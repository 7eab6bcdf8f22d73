// Package api exposes fields, analyses and insights over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jwillz7667/CropLens/internal/delivery"
	"github.com/jwillz7667/CropLens/internal/storage"
	"github.com/jwillz7667/CropLens/internal/store"
)

type FieldStore interface {
	CreateField(ctx context.Context, f store.Field) (store.Field, error)
	GetField(ctx context.Context, id, ownerID string) (store.Field, error)
	ListFields(ctx context.Context, ownerID string) ([]store.Field, error)
	LatestAnalysis(ctx context.Context, fieldID string) (store.Analysis, error)
	ListAnalyses(ctx context.Context, fieldID string) ([]store.Analysis, error)
	ListInsights(ctx context.Context, fieldID string) ([]store.InsightRecord, error)
}

type Analyzer interface {
	AnalyzeField(ctx context.Context, req delivery.AnalyzeRequest) (delivery.AnalyzeResult, error)
}

// Server holds the handlers' collaborators. ObjectsDir, when set, is served
// under /objects. An empty JWTSecret falls back to the X-Owner-Id header.
type Server struct {
	Store          FieldStore
	Analyzer       Analyzer
	Objects        storage.Uploader
	ObjectsDir     string
	JWTSecret      string
	AllowedOrigins []string
	MaxUploadBytes int64

	now func() time.Time
}

const defaultMaxUploadBytes = 64 << 20

// Routes wires middlewares and endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Owner-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.ObjectsDir != "" {
		r.Handle("/objects/*", http.StripPrefix("/objects/", http.FileServer(http.Dir(s.ObjectsDir))))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		// Stateless; nothing is persisted.
		api.Post("/ndvi", s.handleComputeNDVI)

		api.Group(func(pr chi.Router) {
			pr.Use(s.ownerMiddleware)

			pr.Route("/fields", func(fr chi.Router) {
				fr.Get("/", s.handleListFields)
				fr.Post("/", s.handleCreateField)
				fr.Get("/{id}", s.handleGetField)
				fr.Get("/{id}/analyses", s.handleListAnalyses)
				fr.Post("/{id}/analyses", s.handleCreateAnalysis)
				fr.Get("/{id}/insights", s.handleListInsights)
			})

			// Query-string forms kept for existing web clients.
			pr.Get("/analyses", s.handleListAnalyses)
			pr.Post("/analyses", s.handleCreateAnalysis)
			pr.Get("/insights", s.handleListInsights)

			pr.Post("/uploads", s.handleUpload)
		})
	})

	return r
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// fieldID reads the id route parameter, falling back to ?fieldId=.
func fieldID(r *http.Request) string {
	if id := chi.URLParam(r, "id"); id != "" {
		return id
	}
	return r.URL.Query().Get("fieldId")
}

type fieldView struct {
	store.Field
	LatestAnalysis *store.Analysis `json:"latestAnalysis,omitempty"`
}
