package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jwillz7667/CropLens/internal/delivery"
	"github.com/jwillz7667/CropLens/internal/store"
)

type createAnalysisReq struct {
	FieldID   string       `json:"fieldId"`
	UploadKey string       `json:"uploadKey"`
	Source    store.Source `json:"source"`
	Date      string       `json:"date"`
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("date must be RFC 3339 or YYYY-MM-DD")
}

// handleCreateAnalysis runs the full pipeline for one field and answers 201
// with the stored analysis, its insights and the weather outlook.
func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req createAnalysisReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if id := fieldID(r); id != "" {
		req.FieldID = id
	}
	if req.FieldID == "" {
		writeError(w, http.StatusBadRequest, "fieldId required")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.Analyzer.AnalyzeField(r.Context(), delivery.AnalyzeRequest{
		FieldID:   req.FieldID,
		OwnerID:   ownerID(r),
		Source:    req.Source,
		UploadKey: req.UploadKey,
		Date:      date,
	})
	if err != nil {
		fail(w, r, err, "Failed to process analysis")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	id := fieldID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "fieldId required")
		return
	}
	if _, err := s.Store.GetField(r.Context(), id, ownerID(r)); err != nil {
		fail(w, r, err, "Failed to list analyses")
		return
	}
	analyses, err := s.Store.ListAnalyses(r.Context(), id)
	if err != nil {
		fail(w, r, err, "Failed to list analyses")
		return
	}
	writeJSON(w, http.StatusOK, analyses)
}

func (s *Server) handleListInsights(w http.ResponseWriter, r *http.Request) {
	id := fieldID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "fieldId required")
		return
	}
	if _, err := s.Store.GetField(r.Context(), id, ownerID(r)); err != nil {
		fail(w, r, err, "Failed to list insights")
		return
	}
	records, err := s.Store.ListInsights(r.Context(), id)
	if err != nil {
		fail(w, r, err, "Failed to list insights")
		return
	}
	writeJSON(w, http.StatusOK, records)
}
