package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/l0lsec/XRayViewer/internal/services"
	"github.com/rs/zerolog/log"
)

// maxUploadBytes bounds the in-memory portion of a multipart upload;
// larger files spill to temp storage.
const maxUploadBytes = 64 << 20

type LibraryHandler struct {
	library *services.LibraryService
}

func NewLibraryHandler(library *services.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// ListStudies returns every stored study, most recently viewed first.
func (h *LibraryHandler) ListStudies(w http.ResponseWriter, r *http.Request) {
	studies := h.library.ListStudies(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(studies)
}

// SaveStudy imports the uploaded DICOM files as one study. Quota
// exhaustion is reported distinctly so the UI can tell the user to
// free space rather than show a generic failure.
func (h *LibraryHandler) SaveStudy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	files, err := readUploadedFiles(r)
	if err != nil {
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}
	if len(files) == 0 {
		http.Error(w, "No files provided", http.StatusBadRequest)
		return
	}

	meta := models.StudyMeta{
		StudyInstanceUID: r.FormValue("study_instance_uid"),
		PatientName:      r.FormValue("patient_name"),
		StudyDate:        r.FormValue("study_date"),
		StudyDescription: r.FormValue("study_description"),
		Modality:         r.FormValue("modality"),
		ThumbnailDataURL: r.FormValue("thumbnail_data_url"),
	}

	study, err := h.library.SaveStudy(ctx, files, meta)
	if err != nil {
		if errors.Is(err, services.ErrStorageFull) {
			log.Warn().Err(err).Msg("Study save rejected: storage full")
			http.Error(w, "Storage is full. Delete studies from your library to free space.", http.StatusInsufficientStorage)
			return
		}
		log.Error().Err(err).Msg("Failed to save study")
		http.Error(w, "Failed to save study to library", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(study)
}

// LoadStudy returns the stored study plus fresh session handles for
// its images.
func (h *LibraryHandler) LoadStudy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studyID := chi.URLParam(r, "studyID")

	loaded, err := h.library.LoadStudy(ctx, studyID)
	if err != nil {
		if errors.Is(err, services.ErrStudyNotFound) {
			http.Error(w, "Study not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("study_id", studyID).Msg("Failed to load study")
		http.Error(w, "Failed to load study from library", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loaded)
}

// DeleteStudy removes a study and its images. Deleting an unknown id
// succeeds; the end state is the same.
func (h *LibraryHandler) DeleteStudy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studyID := chi.URLParam(r, "studyID")

	if err := h.library.DeleteStudy(ctx, studyID); err != nil {
		log.Error().Err(err).Str("study_id", studyID).Msg("Failed to delete study")
		http.Error(w, "Failed to delete study from library", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats reports library totals and storage usage.
func (h *LibraryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.library.GetStats(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// ClearLibrary empties the study and image stores.
func (h *LibraryHandler) ClearLibrary(w http.ResponseWriter, r *http.Request) {
	if err := h.library.ClearLibrary(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to clear library")
		http.Error(w, "Failed to clear library", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// readUploadedFiles collects the byte payloads of the "files" parts of
// a multipart request, preserving their order.
func readUploadedFiles(r *http.Request) ([][]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, err
	}
	if r.MultipartForm == nil {
		return nil, nil
	}

	var files [][]byte
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, data)
	}
	return files, nil
}
