package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/l0lsec/XRayViewer/internal/database"
	"github.com/l0lsec/XRayViewer/internal/models"
	"gorm.io/gorm/clause"
)

// ThumbnailRepository handles thumbnail store operations
type ThumbnailRepository struct {
	client *database.Client
}

// NewThumbnailRepository creates a new thumbnail repository
func NewThumbnailRepository(client *database.Client) *ThumbnailRepository {
	return &ThumbnailRepository{client: client}
}

// Upsert writes a thumbnail entry, replacing any existing entry for
// the same image.
func (r *ThumbnailRepository) Upsert(ctx context.Context, entry *models.ThumbnailEntry) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open thumbnail store: %w", err)
	}

	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to upsert thumbnail: %w", err)
	}
	return nil
}

// GetByStudyID retrieves all thumbnails of a study via the studyId
// index. No thumbnails is an empty result, not an error.
func (r *ThumbnailRepository) GetByStudyID(ctx context.Context, studyID string) ([]models.ThumbnailEntry, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open thumbnail store: %w", err)
	}

	var entries []models.ThumbnailEntry
	if err := db.Where("study_id = ?", studyID).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to get thumbnails for study: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan removes every entry with a timestamp before the
// cutoff. A full scan is fine here; this is a maintenance operation.
func (r *ThumbnailRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to open thumbnail store: %w", err)
	}

	res := db.Where("timestamp < ?", cutoff).Delete(&models.ThumbnailEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete old thumbnails: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Clear empties the thumbnail store.
func (r *ThumbnailRepository) Clear(ctx context.Context) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open thumbnail store: %w", err)
	}

	if err := db.Where("1 = 1").Delete(&models.ThumbnailEntry{}).Error; err != nil {
		return fmt.Errorf("failed to clear thumbnails: %w", err)
	}
	return nil
}
