package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/l0lsec/XRayViewer/internal/cache"
	"github.com/l0lsec/XRayViewer/internal/database"
	"github.com/l0lsec/XRayViewer/internal/grouping"
	"github.com/l0lsec/XRayViewer/internal/imaging"
	"github.com/l0lsec/XRayViewer/internal/metrics"
	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/l0lsec/XRayViewer/internal/repository"
	"github.com/rs/zerolog/log"
)

// ErrStudyNotFound is returned by LoadStudy for an unknown study id.
var ErrStudyNotFound = errors.New("study not found in library")

// ErrStorageFull is returned when a save would exceed the storage
// quota, so the UI can show an actionable message instead of a
// generic failure.
var ErrStorageFull = errors.New("storage quota exceeded")

// instanceCacheTTL bounds how long raw instance bytes stay in the
// advisory cache after a load.
const instanceCacheTTL = 15 * time.Minute

// LibraryConfig tunes the library service.
type LibraryConfig struct {
	QuotaBytes    int64
	WarnThreshold float64
}

// LibraryService owns the durable study library: full DICOM payloads
// plus study-level metadata, with referential integrity between the
// study and image stores.
type LibraryService struct {
	studyRepo *repository.StudyRepository
	imageRepo *repository.ImageRepository
	prefRepo  *repository.PreferenceRepository
	loader    imaging.Loader
	cache     cache.Cache
	client    *database.Client
	cfg       LibraryConfig
}

// NewLibraryService creates a new library service
func NewLibraryService(
	studyRepo *repository.StudyRepository,
	imageRepo *repository.ImageRepository,
	prefRepo *repository.PreferenceRepository,
	loader imaging.Loader,
	cacheImpl cache.Cache,
	client *database.Client,
	cfg LibraryConfig,
) *LibraryService {
	return &LibraryService{
		studyRepo: studyRepo,
		imageRepo: imageRepo,
		prefRepo:  prefRepo,
		loader:    loader,
		cache:     cacheImpl,
		client:    client,
		cfg:       cfg,
	}
}

// LoadedStudy is the result of loading a study: its record plus fresh
// session-scoped image handles in instance-number order. Handles are
// never persisted; they are regenerated on every load.
type LoadedStudy struct {
	Study        *models.StoredStudy `json:"study"`
	ImageHandles []string            `json:"image_handles"`
}

// SaveStudy persists a batch of DICOM files as one study. Per-file
// identifiers come from each file's metadata; a file whose metadata
// cannot be extracted falls back to positional defaults instead of
// aborting the batch. The study record and all image records are
// written in a single transaction.
func (s *LibraryService) SaveStudy(ctx context.Context, files [][]byte, meta models.StudyMeta) (*models.StoredStudy, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to save")
	}

	studyID := meta.StudyInstanceUID
	if studyID == "" {
		studyID = grouping.UnknownStudyUID
	}

	var totalSize int64
	images := make([]models.StoredImage, 0, len(files))

	for i, data := range files {
		img := models.StoredImage{
			// Positional defaults; replaced below when the file's
			// metadata is readable.
			ImageID:        fmt.Sprintf("%s-%d", studyID, i),
			StudyID:        studyID,
			SeriesID:       grouping.UnknownSeriesUID,
			InstanceNumber: i,
			DicomBytes:     data,
			Size:           int64(len(data)),
		}

		if rec, err := s.extractFileMetadata(ctx, data); err != nil {
			log.Warn().Err(err).Int("file_index", i).Str("study_id", studyID).
				Msg("Failed to extract file metadata, using positional defaults")
		} else {
			if rec.SOPInstanceUID != "" {
				img.ImageID = rec.SOPInstanceUID
			}
			if rec.SeriesInstanceUID != "" {
				img.SeriesID = rec.SeriesInstanceUID
			}
			if rec.InstanceNumber != nil {
				img.InstanceNumber = *rec.InstanceNumber
			}
		}

		totalSize += img.Size
		images = append(images, img)
	}

	if err := s.checkQuota(totalSize); err != nil {
		metrics.SaveFailures.WithLabelValues("quota").Inc()
		return nil, err
	}

	sort.SliceStable(images, func(a, b int) bool {
		return images[a].InstanceNumber < images[b].InstanceNumber
	})

	now := time.Now().UTC()
	study := &models.StoredStudy{
		ID:               studyID,
		PatientName:      meta.PatientName,
		StudyDate:        meta.StudyDate,
		StudyDescription: meta.StudyDescription,
		Modality:         meta.Modality,
		ImageCount:       len(images),
		TotalSize:        totalSize,
		ImportedAt:       now,
		LastViewedAt:     now,
		ThumbnailDataURL: meta.ThumbnailDataURL,
	}

	if err := s.studyRepo.CreateWithImages(ctx, study, images); err != nil {
		if isQuotaError(err) {
			metrics.SaveFailures.WithLabelValues("quota").Inc()
			return nil, fmt.Errorf("%w: %v", ErrStorageFull, err)
		}
		metrics.SaveFailures.WithLabelValues("storage").Inc()
		return nil, fmt.Errorf("failed to save study: %w", err)
	}

	metrics.StudySaves.Inc()

	// The recency entry is a separate transaction by design; losing it
	// must not fail a save that already committed.
	entry := &models.RecentFile{
		ID:               studyID,
		Name:             displayName(meta),
		StudyID:          studyID,
		StudyDescription: meta.StudyDescription,
		Modality:         meta.Modality,
		ImageCount:       len(images),
		IsInLibrary:      true,
		Timestamp:        now,
	}
	if err := s.prefRepo.PutRecentFile(ctx, entry); err != nil {
		log.Warn().Err(err).Str("study_id", studyID).Msg("Failed to record recent file entry")
	}

	return study, nil
}

// LoadStudy fetches a stored study and re-registers every image's
// bytes with the imaging loader to obtain fresh handles. Updating the
// last-viewed timestamp is best effort and never fails the load.
func (s *LibraryService) LoadStudy(ctx context.Context, studyID string) (*LoadedStudy, error) {
	study, err := s.studyRepo.GetByID(ctx, studyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrStudyNotFound
		}
		return nil, fmt.Errorf("failed to load study: %w", err)
	}

	images, err := s.imageRepo.GetByStudyID(ctx, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load study images: %w", err)
	}

	handles := make([]string, 0, len(images))
	for _, img := range images {
		handle, err := s.loader.RegisterFile(ctx, img.DicomBytes)
		if err != nil {
			log.Warn().Err(err).Str("image_id", img.ImageID).Str("study_id", studyID).
				Msg("Failed to re-register stored image, skipping")
			continue
		}
		handles = append(handles, handle)

		if err := s.cache.Set(ctx, cache.InstanceKey(img.ImageID), img.DicomBytes, instanceCacheTTL); err != nil {
			log.Debug().Err(err).Str("image_id", img.ImageID).Msg("Failed to cache instance bytes")
		}
	}

	if err := s.studyRepo.TouchLastViewed(ctx, studyID); err != nil {
		log.Warn().Err(err).Str("study_id", studyID).Msg("Failed to update last viewed timestamp")
	}

	metrics.StudyLoads.Inc()

	return &LoadedStudy{Study: study, ImageHandles: handles}, nil
}

// DeleteStudy removes a study and all of its image records. The two
// phases are not atomic against interruption; an orphaned image row is
// always safe to garbage-collect and SweepOrphans does so on startup.
// Deleting an id that is already gone is a no-op.
func (s *LibraryService) DeleteStudy(ctx context.Context, studyID string) error {
	if err := s.studyRepo.Delete(ctx, studyID); err != nil {
		return fmt.Errorf("failed to delete study record: %w", err)
	}
	if err := s.imageRepo.DeleteByStudyID(ctx, studyID); err != nil {
		return fmt.Errorf("failed to delete study images: %w", err)
	}

	if err := s.cache.Clear(ctx, cache.StudyPattern(studyID)); err != nil {
		log.Debug().Err(err).Str("study_id", studyID).Msg("Failed to evict study cache entries")
	}

	metrics.StudyDeletes.Inc()
	return nil
}

// ListStudies returns all stored studies, most recently viewed first.
// A storage failure yields an empty list, not an error.
func (s *LibraryService) ListStudies(ctx context.Context) []models.StoredStudy {
	studies, err := s.studyRepo.ListByLastViewed(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list studies")
		return []models.StoredStudy{}
	}
	return studies
}

// IsInLibrary checks whether a study id exists. Storage errors report
// false rather than propagating.
func (s *LibraryService) IsInLibrary(ctx context.Context, studyID string) bool {
	exists, err := s.studyRepo.Exists(ctx, studyID)
	if err != nil {
		log.Warn().Err(err).Str("study_id", studyID).Msg("Failed to check library membership")
		return false
	}
	return exists
}

// GetStats derives library statistics and probes the storage engine
// for usage. Quota information being unavailable produces zeros, never
// an error.
func (s *LibraryService) GetStats(ctx context.Context) models.LibraryStats {
	stats := models.LibraryStats{StorageQuota: s.cfg.QuotaBytes}

	for _, study := range s.ListStudies(ctx) {
		stats.StudyCount++
		stats.TotalImages += study.ImageCount
		stats.TotalSize += study.TotalSize
	}

	used, err := s.client.Usage()
	if err != nil {
		log.Debug().Err(err).Msg("Storage usage unavailable")
	} else {
		stats.StorageUsed = used
	}

	metrics.StudyCount.Set(float64(stats.StudyCount))
	metrics.ImageCount.Set(float64(stats.TotalImages))
	metrics.LibraryBytes.Set(float64(stats.TotalSize))
	metrics.StorageUsedBytes.Set(float64(stats.StorageUsed))
	metrics.StorageQuotaBytes.Set(float64(stats.StorageQuota))

	if stats.StorageQuota > 0 && float64(stats.StorageUsed) >= s.cfg.WarnThreshold*float64(stats.StorageQuota) {
		log.Warn().
			Int64("used", stats.StorageUsed).
			Int64("quota", stats.StorageQuota).
			Msg("Storage usage above warning threshold")
	}

	return stats
}

// ClearLibrary empties both the study store and the image store.
func (s *LibraryService) ClearLibrary(ctx context.Context) error {
	if err := s.studyRepo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear study store: %w", err)
	}
	if err := s.imageRepo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear image store: %w", err)
	}
	return nil
}

// SweepOrphans deletes image rows whose study record is gone, the
// residue of a delete interrupted between its two phases.
func (s *LibraryService) SweepOrphans(ctx context.Context) error {
	orphans, err := s.imageRepo.OrphanStudyIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan for orphaned images: %w", err)
	}
	for _, studyID := range orphans {
		if err := s.imageRepo.DeleteByStudyID(ctx, studyID); err != nil {
			return fmt.Errorf("failed to sweep orphaned images for %s: %w", studyID, err)
		}
		log.Info().Str("study_id", studyID).Msg("Swept orphaned image records")
	}
	return nil
}

// extractFileMetadata registers bytes with the loader just long enough
// to read their metadata.
func (s *LibraryService) extractFileMetadata(ctx context.Context, data []byte) (*models.MetadataRecord, error) {
	handle, err := s.loader.RegisterFile(ctx, data)
	if err != nil {
		return nil, err
	}
	return s.loader.ExtractMetadata(ctx, handle)
}

// checkQuota rejects a write that would push usage past the
// configured quota. Without a configured quota the engine's own
// behavior applies.
func (s *LibraryService) checkQuota(incoming int64) error {
	if s.cfg.QuotaBytes <= 0 {
		return nil
	}
	used, err := s.client.Usage()
	if err != nil {
		return nil
	}
	if used+incoming > s.cfg.QuotaBytes {
		return fmt.Errorf("%w: %d bytes used, %d incoming, %d quota",
			ErrStorageFull, used, incoming, s.cfg.QuotaBytes)
	}
	return nil
}

// isQuotaError recognizes engine-level disk-full failures.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "no space left")
}

func displayName(meta models.StudyMeta) string {
	if meta.StudyDescription != "" {
		return meta.StudyDescription
	}
	if meta.PatientName != "" {
		return meta.PatientName
	}
	return meta.StudyInstanceUID
}
