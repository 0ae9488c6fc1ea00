package imaging

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/suyashkumar/dicom"
)

// ErrUnknownHandle is returned when a handle was never registered in
// this session. Handles are session-scoped and never persisted.
var ErrUnknownHandle = fmt.Errorf("unknown image handle")

// Loader is the boundary with the imaging library. It registers raw
// DICOM bytes and answers metadata queries for the issued handles.
// Pixel decoding and rendering stay behind this boundary.
type Loader interface {
	// RegisterFile parses a single DICOM instance and returns an
	// opaque session-scoped handle for it. Unparseable bytes are an
	// error.
	RegisterFile(ctx context.Context, data []byte) (string, error)

	// ExtractMetadata returns the read-only metadata snapshot for a
	// registered handle.
	ExtractMetadata(ctx context.Context, handle string) (*models.MetadataRecord, error)

	// ModuleMetadata returns the fields of one information module for
	// a handle, or nil when the file carries no data for that module.
	// Module absence is a normal outcome, not an error.
	ModuleMetadata(ctx context.Context, module, handle string) (map[string]interface{}, error)

	// FileBytes returns the original bytes a handle was registered
	// with.
	FileBytes(ctx context.Context, handle string) ([]byte, error)
}

type registered struct {
	data []byte
	meta *models.MetadataRecord
}

// DICOMLoader implements Loader over the suyashkumar/dicom parser with
// an in-process handle registry.
type DICOMLoader struct {
	mu      sync.RWMutex
	entries map[string]*registered
}

// NewDICOMLoader creates an empty loader registry.
func NewDICOMLoader() *DICOMLoader {
	return &DICOMLoader{
		entries: make(map[string]*registered),
	}
}

// RegisterFile parses the instance and issues a fresh handle. Metadata
// is extracted once at registration and never mutated.
func (l *DICOMLoader) RegisterFile(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty DICOM file")
	}

	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil, dicom.SkipPixelData())
	if err != nil {
		return "", fmt.Errorf("failed to parse DICOM file: %w", err)
	}

	meta := extractRecord(&ds)
	handle := uuid.NewString()

	l.mu.Lock()
	l.entries[handle] = &registered{data: data, meta: meta}
	l.mu.Unlock()

	return handle, nil
}

// ExtractMetadata returns the snapshot captured at registration.
func (l *DICOMLoader) ExtractMetadata(ctx context.Context, handle string) (*models.MetadataRecord, error) {
	l.mu.RLock()
	entry, ok := l.entries[handle]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownHandle
	}
	return entry.meta, nil
}

// ModuleMetadata projects the snapshot onto one information module.
func (l *DICOMLoader) ModuleMetadata(ctx context.Context, module, handle string) (map[string]interface{}, error) {
	meta, err := l.ExtractMetadata(ctx, handle)
	if err != nil {
		return nil, err
	}
	return moduleFields(module, meta), nil
}

// FileBytes returns the raw bytes for a handle.
func (l *DICOMLoader) FileBytes(ctx context.Context, handle string) ([]byte, error) {
	l.mu.RLock()
	entry, ok := l.entries[handle]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownHandle
	}
	return entry.data, nil
}

// Release drops a handle from the registry.
func (l *DICOMLoader) Release(handle string) {
	l.mu.Lock()
	delete(l.entries, handle)
	l.mu.Unlock()
}

// Len reports the number of live handles.
func (l *DICOMLoader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
