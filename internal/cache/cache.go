package cache

import (
	"context"
	"time"
)

// Cache is an advisory byte cache in front of the persistent stores.
// A miss or a failed write is never an error the primary flow has to
// care about.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, pattern string) error
}

// ThumbnailKey is the cache key for an image's encoded thumbnail.
func ThumbnailKey(imageID string) string {
	return "thumb:" + imageID
}

// InstanceKey is the cache key for an image's raw DICOM bytes.
func InstanceKey(imageID string) string {
	return "instance:" + imageID
}

// StudyPattern matches every cached entry belonging to a study.
func StudyPattern(studyID string) string {
	return "study:" + studyID + ":*"
}

// StudyScopedKey namespaces a key under a study so StudyPattern can
// evict everything for that study at once.
func StudyScopedKey(studyID, suffix string) string {
	return "study:" + studyID + ":" + suffix
}
