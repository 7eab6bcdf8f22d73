package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jwillz7667/CropLens/internal/delivery"
	"github.com/jwillz7667/CropLens/internal/insights"
	"github.com/jwillz7667/CropLens/internal/ndvi"
	"github.com/jwillz7667/CropLens/internal/raster"
	"github.com/jwillz7667/CropLens/internal/storage"
)

type ndviResponse struct {
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Summary  ndvi.Summary       `json:"summaryStats"`
	Insights []insights.Insight `json:"insights"`
	Raster   []byte             `json:"raster"`
}

func (s *Server) maxBody() int64 {
	if s.MaxUploadBytes > 0 {
		return s.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		} else {
			writeError(w, http.StatusBadRequest, "failed to read body")
		}
		return nil, false
	}
	return data, true
}

// handleComputeNDVI runs the pure core on a raw raster body. Nothing is stored.
func (s *Server) handleComputeNDVI(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	result, err := delivery.ComputeNDVI(raster.ViewBytes(data))
	if err != nil {
		fail(w, r, err, "Failed to compute NDVI")
		return
	}
	derived, err := insights.Derive(result.Summary, nil)
	if err != nil {
		fail(w, r, err, "Failed to compute NDVI")
		return
	}
	writeJSON(w, http.StatusOK, ndviResponse{
		Width:    result.Width,
		Height:   result.Height,
		Summary:  result.Summary,
		Insights: derived,
		Raster:   result.Raster,
	})
}

type uploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// handleUpload stores imagery for a field the caller owns. The returned key is
// what POST /analyses expects as uploadKey.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("fieldId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "fieldId required")
		return
	}
	filename := strings.TrimSpace(q.Get("filename"))
	if len(filename) < 3 {
		writeError(w, http.StatusBadRequest, "filename must be at least 3 characters")
		return
	}
	if _, err := s.Store.GetField(r.Context(), id, ownerID(r)); err != nil {
		fail(w, r, err, "Failed to store upload")
		return
	}

	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := storage.UploadKey(id, filename, s.clock())
	url, err := s.Objects.Upload(r.Context(), key, data, contentType)
	if err != nil {
		fail(w, r, err, "Failed to store upload")
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{Key: key, URL: url})
}
