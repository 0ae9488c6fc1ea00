package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/l0lsec/XRayViewer/internal/database"
	"github.com/l0lsec/XRayViewer/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// preferenceRowID is the key of the singleton preference record.
const preferenceRowID = 1

// PreferenceRepository handles the preference singleton and the
// recent-files store.
type PreferenceRepository struct {
	client *database.Client
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(client *database.Client) *PreferenceRepository {
	return &PreferenceRepository{client: client}
}

// GetRaw returns the stored preference override document, or
// ErrNotFound when nothing was ever written.
func (r *PreferenceRepository) GetRaw(ctx context.Context) ([]byte, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference store: %w", err)
	}

	var rec models.PreferenceRecord
	if err := db.Where("id = ?", preferenceRowID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	return rec.Data, nil
}

// PutRaw overwrites the stored preference override document.
func (r *PreferenceRepository) PutRaw(ctx context.Context, data []byte) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open preference store: %w", err)
	}

	rec := models.PreferenceRecord{
		ID:        preferenceRowID,
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

// ClearPreferences drops the stored overrides, restoring defaults.
func (r *PreferenceRepository) ClearPreferences(ctx context.Context) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open preference store: %w", err)
	}

	if err := db.Where("id = ?", preferenceRowID).Delete(&models.PreferenceRecord{}).Error; err != nil {
		return fmt.Errorf("failed to clear preferences: %w", err)
	}
	return nil
}

// PutRecentFile upserts a recency entry. Writing an existing id
// refreshes the earlier entry in place.
func (r *PreferenceRepository) PutRecentFile(ctx context.Context, entry *models.RecentFile) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open recent-files store: %w", err)
	}

	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write recent file: %w", err)
	}
	return nil
}

// ListRecentFiles returns at most limit entries, newest first. The
// bound is pushed into the query so a large history is never fully
// materialized.
func (r *PreferenceRepository) ListRecentFiles(ctx context.Context, limit int) ([]models.RecentFile, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open recent-files store: %w", err)
	}

	var entries []models.RecentFile
	query := db.Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent files: %w", err)
	}
	return entries, nil
}

// ClearRecentFiles empties the recent-files store.
func (r *PreferenceRepository) ClearRecentFiles(ctx context.Context) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open recent-files store: %w", err)
	}

	if err := db.Where("1 = 1").Delete(&models.RecentFile{}).Error; err != nil {
		return fmt.Errorf("failed to clear recent files: %w", err)
	}
	return nil
}
