package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/l0lsec/XRayViewer/internal/services"
	"github.com/rs/zerolog/log"
)

type PreferenceHandler struct {
	prefs *services.PreferenceService
}

func NewPreferenceHandler(prefs *services.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs}
}

// GetPreferences returns the merged settings. This never fails: a
// broken store degrades to defaults.
func (h *PreferenceHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs := h.prefs.GetPreferences(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// SavePreferences merges a partial settings document.
func (h *PreferenceHandler) SavePreferences(w http.ResponseWriter, r *http.Request) {
	var partial map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.prefs.SavePreferences(r.Context(), partial); err != nil {
		log.Error().Err(err).Msg("Failed to save preferences")
		http.Error(w, "Failed to save preferences", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.prefs.GetPreferences(r.Context()))
}

// SetPreference updates one settings key.
func (h *PreferenceHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var value interface{}
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.prefs.SetPreference(r.Context(), key, value); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to set preference")
		http.Error(w, "Failed to set preference", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.prefs.GetPreferences(r.Context()))
}

// GetRecentFiles returns the recency list, newest first. Failures are
// silent; the list is a convenience, not a source of truth.
func (h *PreferenceHandler) GetRecentFiles(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}

	entries := h.prefs.GetRecentFiles(r.Context(), limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// AddRecentFile records an opened study.
func (h *PreferenceHandler) AddRecentFile(w http.ResponseWriter, r *http.Request) {
	var entry models.RecentFile
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if entry.Name == "" && entry.StudyID == "" {
		http.Error(w, "Entry needs a name or study id", http.StatusBadRequest)
		return
	}

	if err := h.prefs.AddRecentFile(r.Context(), entry); err != nil {
		// Cache tier: log and accept anyway.
		log.Warn().Err(err).Msg("Failed to record recent file")
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearRecentFiles empties the recency list.
func (h *PreferenceHandler) ClearRecentFiles(w http.ResponseWriter, r *http.Request) {
	if err := h.prefs.ClearRecentFiles(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to clear recent files")
		http.Error(w, "Failed to clear recent files", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearAllStorage empties every store the viewer owns.
func (h *PreferenceHandler) ClearAllStorage(w http.ResponseWriter, r *http.Request) {
	if err := h.prefs.ClearAllStorage(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to clear storage")
		http.Error(w, "Failed to clear storage", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
