package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/l0lsec/XRayViewer/internal/repository"
	"github.com/rs/zerolog/log"
)

// PreferenceService owns user settings and the recent-files list.
//
// Preference writes are read-merge-write with no locking: two writers
// racing on the same key lose one update (last-write-wins). That is an
// accepted limitation for a single-user, single-process tool.
type PreferenceService struct {
	prefRepo  *repository.PreferenceRepository
	studyRepo *repository.StudyRepository
	imageRepo *repository.ImageRepository
	thumbRepo *repository.ThumbnailRepository

	recentLimit int
}

// NewPreferenceService creates a new preference service. The study,
// image and thumbnail repositories are only used by ClearAllStorage,
// which must enumerate every store this subsystem owns.
func NewPreferenceService(
	prefRepo *repository.PreferenceRepository,
	studyRepo *repository.StudyRepository,
	imageRepo *repository.ImageRepository,
	thumbRepo *repository.ThumbnailRepository,
	recentLimit int,
) *PreferenceService {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &PreferenceService{
		prefRepo:    prefRepo,
		studyRepo:   studyRepo,
		imageRepo:   imageRepo,
		thumbRepo:   thumbRepo,
		recentLimit: recentLimit,
	}
}

// GetPreferences returns the defaults merged under any stored partial
// override. A read failure returns pure defaults, never an error, so
// the UI always has settings to work with.
func (s *PreferenceService) GetPreferences(ctx context.Context) models.Preferences {
	prefs := models.DefaultPreferences()

	raw, err := s.prefRepo.GetRaw(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to read preferences, using defaults")
		}
		return prefs
	}

	// Unmarshalling the stored partial document over a defaults copy
	// only overrides the keys actually present, which is exactly the
	// merge the contract asks for.
	if err := json.Unmarshal(raw, &prefs); err != nil {
		log.Warn().Err(err).Msg("Failed to decode stored preferences, using defaults")
		return models.DefaultPreferences()
	}
	return prefs
}

// SetPreference updates a single preference key, preserving the other
// stored overrides.
func (s *PreferenceService) SetPreference(ctx context.Context, key string, value interface{}) error {
	overrides, err := s.storedOverrides(ctx)
	if err != nil {
		return err
	}
	overrides[key] = value
	return s.writeOverrides(ctx, overrides)
}

// SavePreferences merges a partial settings document into the stored
// overrides.
func (s *PreferenceService) SavePreferences(ctx context.Context, partial map[string]interface{}) error {
	overrides, err := s.storedOverrides(ctx)
	if err != nil {
		return err
	}
	for k, v := range partial {
		overrides[k] = v
	}
	return s.writeOverrides(ctx, overrides)
}

func (s *PreferenceService) storedOverrides(ctx context.Context) (map[string]interface{}, error) {
	overrides := make(map[string]interface{})
	raw, err := s.prefRepo.GetRaw(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return overrides, nil
		}
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	if err := json.Unmarshal(raw, &overrides); err != nil {
		log.Warn().Err(err).Msg("Discarding undecodable stored preferences")
		return make(map[string]interface{}), nil
	}
	return overrides, nil
}

func (s *PreferenceService) writeOverrides(ctx context.Context, overrides map[string]interface{}) error {
	raw, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	return s.prefRepo.PutRaw(ctx, raw)
}

// AddRecentFile records an opened study. The entry id is the study UID
// when known, so re-opening a study refreshes its entry rather than
// adding a duplicate; otherwise a name+timestamp composite keeps the
// entry unique.
func (s *PreferenceService) AddRecentFile(ctx context.Context, entry models.RecentFile) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ID == "" {
		if entry.StudyID != "" {
			entry.ID = entry.StudyID
		} else {
			entry.ID = fmt.Sprintf("%s-%d", entry.Name, entry.Timestamp.UnixMilli())
		}
	}
	return s.prefRepo.PutRecentFile(ctx, &entry)
}

// GetRecentFiles returns at most limit entries, newest first. Zero or
// negative means the configured default bound. Failures yield an empty
// list; the recency list is a cache tier and never interrupts the
// user.
func (s *PreferenceService) GetRecentFiles(ctx context.Context, limit int) []models.RecentFile {
	if limit <= 0 {
		limit = s.recentLimit
	}
	entries, err := s.prefRepo.ListRecentFiles(ctx, limit)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list recent files")
		return []models.RecentFile{}
	}
	return entries
}

// ClearRecentFiles empties the recent-files store.
func (s *PreferenceService) ClearRecentFiles(ctx context.Context) error {
	return s.prefRepo.ClearRecentFiles(ctx)
}

// ClearAllStorage empties every store this subsystem owns:
// preferences, recent files, studies, images and thumbnails. Adding a
// store to the schema means adding it here, otherwise it survives a
// full clear.
func (s *PreferenceService) ClearAllStorage(ctx context.Context) error {
	if err := s.prefRepo.ClearPreferences(ctx); err != nil {
		return fmt.Errorf("failed to clear preferences: %w", err)
	}
	if err := s.prefRepo.ClearRecentFiles(ctx); err != nil {
		return fmt.Errorf("failed to clear recent files: %w", err)
	}
	if err := s.studyRepo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear studies: %w", err)
	}
	if err := s.imageRepo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear images: %w", err)
	}
	if err := s.thumbRepo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear thumbnails: %w", err)
	}
	return nil
}
