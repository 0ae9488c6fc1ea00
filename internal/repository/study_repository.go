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

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// StudyRepository handles study store operations
type StudyRepository struct {
	client *database.Client
}

// NewStudyRepository creates a new study repository
func NewStudyRepository(client *database.Client) *StudyRepository {
	return &StudyRepository{client: client}
}

// CreateWithImages persists a study record and all of its image
// records in one transaction. Either everything becomes visible
// together or nothing does. Re-saving an existing study replaces its
// image set wholesale; stale rows from the previous save must not
// survive, or the study's imageCount and its image rows drift apart.
func (r *StudyRepository) CreateWithImages(ctx context.Context, study *models.StoredStudy, images []models.StoredImage) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open study store: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(study).Error; err != nil {
			return fmt.Errorf("failed to create study record: %w", err)
		}
		if err := tx.Where("study_id = ?", study.ID).Delete(&models.StoredImage{}).Error; err != nil {
			return fmt.Errorf("failed to clear previous image records: %w", err)
		}
		for i := range images {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&images[i]).Error; err != nil {
				return fmt.Errorf("failed to create image record %s: %w", images[i].ImageID, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a study by its UID
func (r *StudyRepository) GetByID(ctx context.Context, studyID string) (*models.StoredStudy, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open study store: %w", err)
	}

	var study models.StoredStudy
	if err := db.Where("id = ?", studyID).First(&study).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	return &study, nil
}

// ListByLastViewed retrieves all studies, most recently viewed first.
func (r *StudyRepository) ListByLastViewed(ctx context.Context) ([]models.StoredStudy, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open study store: %w", err)
	}

	var studies []models.StoredStudy
	if err := db.Order("last_viewed_at DESC").Find(&studies).Error; err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	return studies, nil
}

// Exists checks for a study by primary key.
func (r *StudyRepository) Exists(ctx context.Context, studyID string) (bool, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to open study store: %w", err)
	}

	var count int64
	if err := db.Model(&models.StoredStudy{}).Where("id = ?", studyID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check study existence: %w", err)
	}
	return count > 0, nil
}

// TouchLastViewed updates the last-viewed timestamp of a study.
func (r *StudyRepository) TouchLastViewed(ctx context.Context, studyID string) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open study store: %w", err)
	}

	if err := db.Model(&models.StoredStudy{}).
		Where("id = ?", studyID).
		Update("last_viewed_at", time.Now().UTC()).Error; err != nil {
		return fmt.Errorf("failed to update last viewed: %w", err)
	}
	return nil
}

// Delete removes a study record. Deleting a missing study is a no-op.
func (r *StudyRepository) Delete(ctx context.Context, studyID string) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open study store: %w", err)
	}

	if err := db.Where("id = ?", studyID).Delete(&models.StoredStudy{}).Error; err != nil {
		return fmt.Errorf("failed to delete study: %w", err)
	}
	return nil
}

// Clear empties the study store.
func (r *StudyRepository) Clear(ctx context.Context) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open study store: %w", err)
	}

	if err := db.Where("1 = 1").Delete(&models.StoredStudy{}).Error; err != nil {
		return fmt.Errorf("failed to clear studies: %w", err)
	}
	return nil
}
