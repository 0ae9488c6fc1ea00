package models

import (
	"time"
)

// ThumbnailEntry is a cached preview raster for one image. It is a
// cache, not a source of truth: entries may be evicted independently of
// the study they belong to and are regenerated on demand.
type ThumbnailEntry struct {
	ImageID   string    `gorm:"type:varchar(192);primaryKey" json:"image_id"`
	StudyID   string    `gorm:"type:varchar(128);index" json:"study_id,omitempty"`
	DataURL   string    `gorm:"type:text;not null" json:"data_url"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (ThumbnailEntry) TableName() string {
	return "thumbnails"
}
