package repository

import (
	"context"
	"fmt"

	"github.com/l0lsec/XRayViewer/internal/database"
	"github.com/l0lsec/XRayViewer/internal/models"
)

// ImageRepository handles image store operations
type ImageRepository struct {
	client *database.Client
}

// NewImageRepository creates a new image repository
func NewImageRepository(client *database.Client) *ImageRepository {
	return &ImageRepository{client: client}
}

// GetByStudyID retrieves all image records of a study via the studyId
// index, ordered by instance number.
func (r *ImageRepository) GetByStudyID(ctx context.Context, studyID string) ([]models.StoredImage, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open image store: %w", err)
	}

	var images []models.StoredImage
	if err := db.Where("study_id = ?", studyID).
		Order("instance_number ASC").
		Find(&images).Error; err != nil {
		return nil, fmt.Errorf("failed to get images for study: %w", err)
	}
	return images, nil
}

// CountByStudyID counts the image records referencing a study.
func (r *ImageRepository) CountByStudyID(ctx context.Context, studyID string) (int64, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to open image store: %w", err)
	}

	var count int64
	if err := db.Model(&models.StoredImage{}).
		Where("study_id = ?", studyID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return count, nil
}

// DeleteByStudyID removes every image record referencing a study. The
// store has no cascading foreign keys, so rows are enumerated through
// the index and deleted one by one; a retry after interruption simply
// deletes whatever remains.
func (r *ImageRepository) DeleteByStudyID(ctx context.Context, studyID string) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open image store: %w", err)
	}

	var ids []string
	if err := db.Model(&models.StoredImage{}).
		Where("study_id = ?", studyID).
		Pluck("image_id", &ids).Error; err != nil {
		return fmt.Errorf("failed to enumerate images for study: %w", err)
	}

	for _, id := range ids {
		if err := db.Where("image_id = ?", id).Delete(&models.StoredImage{}).Error; err != nil {
			return fmt.Errorf("failed to delete image %s: %w", id, err)
		}
	}
	return nil
}

// OrphanStudyIDs returns the study IDs referenced by image rows whose
// study record no longer exists, e.g. after an interrupted delete.
func (r *ImageRepository) OrphanStudyIDs(ctx context.Context) ([]string, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open image store: %w", err)
	}

	var ids []string
	if err := db.Model(&models.StoredImage{}).
		Distinct("study_id").
		Where("study_id NOT IN (?)", db.Model(&models.StoredStudy{}).Select("id")).
		Pluck("study_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to find orphaned images: %w", err)
	}
	return ids, nil
}

// Clear empties the image store.
func (r *ImageRepository) Clear(ctx context.Context) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return fmt.Errorf("failed to open image store: %w", err)
	}

	if err := db.Where("1 = 1").Delete(&models.StoredImage{}).Error; err != nil {
		return fmt.Errorf("failed to clear images: %w", err)
	}
	return nil
}
