package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jwillz7667/CropLens/internal/delivery"
	"github.com/jwillz7667/CropLens/internal/ndvi"
	"github.com/jwillz7667/CropLens/internal/raster"
	"github.com/jwillz7667/CropLens/internal/sentinel"
	"github.com/jwillz7667/CropLens/internal/storage"
	"github.com/jwillz7667/CropLens/internal/store"
	"github.com/jwillz7667/CropLens/internal/utils"
	"github.com/mdobak/go-xerrors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a pipeline error onto a response. fallback is the message for
// anything unexpected.
func fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case raster.IsDecodeError(err), ndvi.IsInvalidInput(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Field not found")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Upload not found")
	case delivery.IsValidation(err), errors.Is(err, storage.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sentinel.ErrUnauthorized):
		utils.GetLogger().ErrorContext(r.Context(), "imagery provider rejected credentials",
			slog.String("requestId", middleware.GetReqID(r.Context())),
			slog.Any("error", xerrors.New(err)))
		writeError(w, http.StatusBadGateway, "Imagery provider unavailable")
	default:
		utils.GetLogger().ErrorContext(r.Context(), fallback,
			slog.String("path", r.URL.Path),
			slog.String("requestId", middleware.GetReqID(r.Context())),
			slog.Any("error", xerrors.New(err)))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
