package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/l0lsec/XRayViewer/internal/grouping"
	"github.com/l0lsec/XRayViewer/internal/imaging"
	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/rs/zerolog/log"
)

// ViewerHandler serves the file-open flow: register uploaded files
// with the imaging loader and return the grouped study tree for
// display. Nothing is persisted until the user saves a study.
type ViewerHandler struct {
	loader imaging.Loader
	engine *grouping.Engine
}

func NewViewerHandler(loader imaging.Loader, engine *grouping.Engine) *ViewerHandler {
	return &ViewerHandler{loader: loader, engine: engine}
}

type openResponse struct {
	Studies          []models.DicomStudy `json:"studies"`
	ImageHandles     []string            `json:"image_handles"`
	SeriesBoundaries []int               `json:"series_boundaries"`
	SkippedFiles     int                 `json:"skipped_files,omitempty"`
}

// OpenFiles registers each uploaded file and groups the results into
// the study tree. A file the loader cannot parse is skipped and
// counted; it never aborts the rest of the batch.
func (h *ViewerHandler) OpenFiles(w http.ResponseWriter, r *http.Request) {
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

	handles := make([]string, 0, len(files))
	skipped := 0
	for i, data := range files {
		handle, err := h.loader.RegisterFile(ctx, data)
		if err != nil {
			log.Warn().Err(err).Int("file_index", i).Msg("Skipping unparseable file")
			skipped++
			continue
		}
		handles = append(handles, handle)
	}

	if len(handles) == 0 {
		http.Error(w, "None of the uploaded files could be read as DICOM", http.StatusUnprocessableEntity)
		return
	}

	studies := h.engine.Group(ctx, handles)
	flat, boundaries := grouping.Flatten(studies)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openResponse{
		Studies:          studies,
		ImageHandles:     flat,
		SeriesBoundaries: boundaries,
		SkippedFiles:     skipped,
	})
}
