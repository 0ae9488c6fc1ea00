package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"time"

	"github.com/l0lsec/XRayViewer/internal/cache"
	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/l0lsec/XRayViewer/internal/repository"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// thumbnailCacheTTL is how long encoded thumbnails stay in the hot
// cache in front of the persistent store.
const thumbnailCacheTTL = time.Hour

// ThumbnailService manages preview rasters. Every operation is
// advisory: a failed thumbnail read or write never blocks the viewing
// flow, and a missing thumbnail just means "not yet generated".
type ThumbnailService struct {
	thumbRepo   *repository.ThumbnailRepository
	cache       cache.Cache
	jpegQuality int
}

// NewThumbnailService creates a new thumbnail service
func NewThumbnailService(thumbRepo *repository.ThumbnailRepository, cacheImpl cache.Cache, jpegQuality int) *ThumbnailService {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = 80
	}
	return &ThumbnailService{
		thumbRepo:   thumbRepo,
		cache:       cacheImpl,
		jpegQuality: jpegQuality,
	}
}

// GenerateThumbnail scales a raster to fit a maxSize×maxSize box
// preserving aspect ratio (longer side becomes maxSize, shorter side
// rounds proportionally) and re-encodes it as a JPEG data URL. Pure
// computation, no I/O.
func (s *ThumbnailService) GenerateThumbnail(src image.Image, maxSize int) (string, int, int, error) {
	if src == nil {
		return "", 0, 0, fmt.Errorf("nil source image")
	}
	if maxSize <= 0 {
		return "", 0, 0, fmt.Errorf("invalid thumbnail size %d", maxSize)
	}

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return "", 0, 0, fmt.Errorf("empty source image")
	}

	width, height := FitWithin(srcW, srcH, maxSize)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: s.jpegQuality}); err != nil {
		return "", 0, 0, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	return dataURL, width, height, nil
}

// FitWithin computes scale-to-fit dimensions: the longer side becomes
// maxSize and the shorter side is rounded proportionally. Sources
// already smaller than the box are still normalized to it.
func FitWithin(srcW, srcH, maxSize int) (int, int) {
	if srcW >= srcH {
		h := int(math.Round(float64(srcH) / float64(srcW) * float64(maxSize)))
		if h < 1 {
			h = 1
		}
		return maxSize, h
	}
	w := int(math.Round(float64(srcW) / float64(srcH) * float64(maxSize)))
	if w < 1 {
		w = 1
	}
	return w, maxSize
}

// SaveThumbnail upserts a thumbnail entry for an image and refreshes
// the hot cache. Callers may ignore the error: losing a thumbnail
// write is harmless.
func (s *ThumbnailService) SaveThumbnail(ctx context.Context, imageID, dataURL string, width, height int, studyID string) error {
	entry := &models.ThumbnailEntry{
		ImageID:   imageID,
		StudyID:   studyID,
		DataURL:   dataURL,
		Width:     width,
		Height:    height,
		Timestamp: time.Now().UTC(),
	}
	if err := s.thumbRepo.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}

	if err := s.cache.Set(ctx, cache.ThumbnailKey(imageID), []byte(dataURL), thumbnailCacheTTL); err != nil {
		log.Debug().Err(err).Str("image_id", imageID).Msg("Failed to cache thumbnail")
	}
	return nil
}

// GetStudyThumbnails returns the thumbnails of a study. Failures and
// absence both yield an empty list.
func (s *ThumbnailService) GetStudyThumbnails(ctx context.Context, studyID string) []models.ThumbnailEntry {
	entries, err := s.thumbRepo.GetByStudyID(ctx, studyID)
	if err != nil {
		log.Warn().Err(err).Str("study_id", studyID).Msg("Failed to read study thumbnails")
		return []models.ThumbnailEntry{}
	}
	return entries
}

// ClearOldThumbnails deletes entries older than maxAgeDays and reports
// how many were removed.
func (s *ThumbnailService) ClearOldThumbnails(ctx context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays <= 0 {
		return 0, fmt.Errorf("invalid thumbnail age %d", maxAgeDays)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	removed, err := s.thumbRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clear old thumbnails: %w", err)
	}
	return removed, nil
}

// ClearAllThumbnails empties the thumbnail store.
func (s *ThumbnailService) ClearAllThumbnails(ctx context.Context) error {
	return s.thumbRepo.Clear(ctx)
}
