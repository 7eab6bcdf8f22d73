package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jwillz7667/CropLens/internal/sentinel"
	"github.com/jwillz7667/CropLens/internal/store"
)

type createFieldReq struct {
	Name     string          `json:"name"`
	Acreage  float64         `json:"acreage"`
	Crop     *string         `json:"crop"`
	Centroid *store.Centroid `json:"centroid"`
	Boundary json.RawMessage `json:"boundaryGeoJson"`
}

// handleCreateField stores a field. A missing centroid is derived from the
// boundary.
func (s *Server) handleCreateField(w http.ResponseWriter, r *http.Request) {
	var req createFieldReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if len(strings.TrimSpace(req.Name)) < 2 {
		writeError(w, http.StatusBadRequest, "name must be at least 2 characters")
		return
	}
	if req.Acreage <= 0 {
		writeError(w, http.StatusBadRequest, "acreage must be positive")
		return
	}

	hasBoundary := len(req.Boundary) > 0 && string(req.Boundary) != "null"
	if hasBoundary {
		g, err := sentinel.ParseGeometry(req.Boundary)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Centroid == nil {
			lat, lng, err := sentinel.Centroid(g)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			req.Centroid = &store.Centroid{Lat: lat, Lng: lng}
		}
	}
	if req.Centroid == nil {
		writeError(w, http.StatusBadRequest, "centroid or boundaryGeoJson is required")
		return
	}

	f, err := s.Store.CreateField(r.Context(), store.Field{
		OwnerID:  ownerID(r),
		Name:     strings.TrimSpace(req.Name),
		Acreage:  req.Acreage,
		Crop:     req.Crop,
		Centroid: *req.Centroid,
		Boundary: req.Boundary,
	})
	if err != nil {
		fail(w, r, err, "Failed to create field")
		return
	}
	writeJSON(w, http.StatusCreated, fieldView{Field: f})
}

// handleListFields returns the caller's fields, most recently updated first,
// each with its latest analysis.
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.Store.ListFields(r.Context(), ownerID(r))
	if err != nil {
		fail(w, r, err, "Failed to list fields")
		return
	}
	out := make([]fieldView, 0, len(fields))
	for _, f := range fields {
		v, err := s.withLatest(r, f)
		if err != nil {
			fail(w, r, err, "Failed to list fields")
			return
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	f, err := s.Store.GetField(r.Context(), fieldID(r), ownerID(r))
	if err != nil {
		fail(w, r, err, "Failed to load field")
		return
	}
	v, err := s.withLatest(r, f)
	if err != nil {
		fail(w, r, err, "Failed to load field")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) withLatest(r *http.Request, f store.Field) (fieldView, error) {
	latest, err := s.Store.LatestAnalysis(r.Context(), f.ID)
	switch {
	case err == nil:
		return fieldView{Field: f, LatestAnalysis: &latest}, nil
	case errors.Is(err, store.ErrNotFound):
		return fieldView{Field: f}, nil
	default:
		return fieldView{}, err
	}
}
