package handlers

import (
	"encoding/json"
	"image"
	"net/http"
	"strconv"

	_ "image/jpeg"
	_ "image/png"

	"github.com/go-chi/chi/v5"
	"github.com/l0lsec/XRayViewer/internal/services"
	"github.com/rs/zerolog/log"
)

type ThumbnailHandler struct {
	thumbs         *services.ThumbnailService
	defaultMaxSize int
}

func NewThumbnailHandler(thumbs *services.ThumbnailService, defaultMaxSize int) *ThumbnailHandler {
	return &ThumbnailHandler{thumbs: thumbs, defaultMaxSize: defaultMaxSize}
}

type saveThumbnailRequest struct {
	DataURL string `json:"data_url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	StudyID string `json:"study_id,omitempty"`
}

// SaveThumbnail stores an already-encoded thumbnail for an image.
// Thumbnails are advisory, so a failed write still answers 204; the
// viewer regenerates on demand.
func (h *ThumbnailHandler) SaveThumbnail(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageID")

	var req saveThumbnailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DataURL == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.thumbs.SaveThumbnail(r.Context(), imageID, req.DataURL, req.Width, req.Height, req.StudyID); err != nil {
		log.Warn().Err(err).Str("image_id", imageID).Msg("Failed to save thumbnail")
	}

	w.WriteHeader(http.StatusNoContent)
}

// GenerateThumbnail scales a posted raster (PNG or JPEG body) and
// stores the result for the image.
func (h *ThumbnailHandler) GenerateThumbnail(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageID")
	studyID := r.URL.Query().Get("study_id")

	maxSize := h.defaultMaxSize
	if s := r.URL.Query().Get("max_size"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			maxSize = n
		}
	}

	src, _, err := image.Decode(r.Body)
	if err != nil {
		http.Error(w, "Body is not a decodable image", http.StatusBadRequest)
		return
	}

	dataURL, width, height, err := h.thumbs.GenerateThumbnail(src, maxSize)
	if err != nil {
		log.Warn().Err(err).Str("image_id", imageID).Msg("Failed to generate thumbnail")
		http.Error(w, "Failed to generate thumbnail", http.StatusInternalServerError)
		return
	}

	if err := h.thumbs.SaveThumbnail(r.Context(), imageID, dataURL, width, height, studyID); err != nil {
		log.Warn().Err(err).Str("image_id", imageID).Msg("Failed to persist generated thumbnail")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(saveThumbnailRequest{
		DataURL: dataURL,
		Width:   width,
		Height:  height,
		StudyID: studyID,
	})
}

// GetStudyThumbnails returns the thumbnails of a study; an empty list
// means none have been generated yet.
func (h *ThumbnailHandler) GetStudyThumbnails(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")
	entries := h.thumbs.GetStudyThumbnails(r.Context(), studyID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// ClearThumbnails deletes thumbnails: all of them, or only entries
// older than the max_age_days query parameter.
func (h *ThumbnailHandler) ClearThumbnails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s := r.URL.Query().Get("max_age_days"); s != "" {
		days, err := strconv.Atoi(s)
		if err != nil || days <= 0 {
			http.Error(w, "Invalid max_age_days", http.StatusBadRequest)
			return
		}
		removed, err := h.thumbs.ClearOldThumbnails(ctx, days)
		if err != nil {
			log.Error().Err(err).Msg("Failed to clear old thumbnails")
			http.Error(w, "Failed to clear thumbnails", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"removed": removed})
		return
	}

	if err := h.thumbs.ClearAllThumbnails(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear thumbnails")
		http.Error(w, "Failed to clear thumbnails", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
