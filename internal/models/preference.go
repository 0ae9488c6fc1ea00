package models

import (
	"time"
)

// PreferenceRecord is the singleton row holding the stored preference
// overrides as a JSON document. Only keys the user has changed are
// present; defaults are merged underneath at read time.
type PreferenceRecord struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Data      []byte    `gorm:"type:blob" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (PreferenceRecord) TableName() string {
	return "preferences"
}

// Preferences holds the user-facing viewer settings. The zero value is
// not meaningful; use DefaultPreferences.
type Preferences struct {
	DefaultTool       string `json:"defaultTool"`
	ShowPhiData       bool   `json:"showPhiData"`
	ShowSidePanel     bool   `json:"showSidePanel"`
	ShowToolbar       bool   `json:"showToolbar"`
	InvertScrollZoom  bool   `json:"invertScrollZoom"`
	DefaultZoomToFit  bool   `json:"defaultZoomToFit"`
	MeasurementUnit   string `json:"measurementUnit"`
	ThumbnailsEnabled bool   `json:"thumbnailsEnabled"`
}

// DefaultPreferences returns the immutable default baseline. Stored
// partial overrides are merged on top, so newly introduced keys pick up
// these values without a schema migration.
func DefaultPreferences() Preferences {
	return Preferences{
		DefaultTool:       "windowLevel",
		ShowPhiData:       false,
		ShowSidePanel:     true,
		ShowToolbar:       true,
		InvertScrollZoom:  false,
		DefaultZoomToFit:  true,
		MeasurementUnit:   "mm",
		ThumbnailsEnabled: true,
	}
}

// RecentFile records a previously opened study for the recency list.
// ID equals the study UID when known, so re-opening the same study
// overwrites the earlier entry instead of growing the list.
type RecentFile struct {
	ID               string    `gorm:"type:varchar(255);primaryKey" json:"id"`
	Name             string    `gorm:"type:varchar(255);not null" json:"name"`
	StudyID          string    `gorm:"type:varchar(128)" json:"study_id,omitempty"`
	StudyDescription string    `gorm:"type:text" json:"study_description,omitempty"`
	Modality         string    `gorm:"type:varchar(16)" json:"modality,omitempty"`
	ImageCount       int       `json:"image_count,omitempty"`
	IsInLibrary      bool      `json:"is_in_library"`
	Timestamp        time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (RecentFile) TableName() string {
	return "recent_files"
}
