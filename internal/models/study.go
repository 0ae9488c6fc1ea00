package models

import (
	"time"
)

// StoredStudy is a persisted study record in the library.
// Its primary key is the DICOM StudyInstanceUID.
type StoredStudy struct {
	ID               string    `gorm:"type:varchar(128);primaryKey" json:"id"`
	PatientName      string    `gorm:"type:varchar(255)" json:"patient_name,omitempty"`
	StudyDate        string    `gorm:"type:varchar(16)" json:"study_date,omitempty"`
	StudyDescription string    `gorm:"type:text" json:"study_description,omitempty"`
	Modality         string    `gorm:"type:varchar(16)" json:"modality,omitempty"`
	ImageCount       int       `gorm:"not null" json:"image_count"`
	TotalSize        int64     `gorm:"not null" json:"total_size"`
	ImportedAt       time.Time `gorm:"index" json:"imported_at"`
	LastViewedAt     time.Time `gorm:"index" json:"last_viewed_at"`
	ThumbnailDataURL string    `gorm:"type:text" json:"thumbnail_data_url,omitempty"`
}

// TableName overrides the table name
func (StoredStudy) TableName() string {
	return "studies"
}

// StoredImage is one persisted DICOM instance belonging to a StoredStudy.
// The full file bytes are kept so the instance can be re-registered with
// the imaging loader on a later session.
type StoredImage struct {
	ImageID        string `gorm:"type:varchar(192);primaryKey" json:"image_id"`
	StudyID        string `gorm:"type:varchar(128);not null;index" json:"study_id"`
	SeriesID       string `gorm:"type:varchar(128);index" json:"series_id"`
	InstanceNumber int    `json:"instance_number"`
	DicomBytes     []byte `gorm:"not null" json:"-"`
	Size           int64  `gorm:"not null" json:"size"`
}

// TableName overrides the table name
func (StoredImage) TableName() string {
	return "images"
}

// LibraryStats summarizes the study library and the storage engine
// underneath it. StorageUsed and StorageQuota are zero when the engine
// exposes no usage information.
type LibraryStats struct {
	StudyCount   int   `json:"study_count"`
	TotalImages  int   `json:"total_images"`
	TotalSize    int64 `json:"total_size"`
	StorageUsed  int64 `json:"storage_used"`
	StorageQuota int64 `json:"storage_quota"`
}

// StudyMeta carries the study-level attributes supplied by the caller
// when importing files into the library.
type StudyMeta struct {
	StudyInstanceUID string `json:"study_instance_uid"`
	PatientName      string `json:"patient_name,omitempty"`
	StudyDate        string `json:"study_date,omitempty"`
	StudyDescription string `json:"study_description,omitempty"`
	Modality         string `json:"modality,omitempty"`
	ThumbnailDataURL string `json:"thumbnail_data_url,omitempty"`
}
