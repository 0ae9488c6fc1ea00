package imaging

import (
	"context"
	"testing"

	"github.com/l0lsec/XRayViewer/internal/models"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func TestModuleFieldsProjection(t *testing.T) {
	meta := &models.MetadataRecord{
		StudyInstanceUID:  "1.2.3",
		SeriesInstanceUID: "1.2.3.1",
		SOPInstanceUID:    "1.2.3.1.1",
		InstanceNumber:    intPtr(7),
		SeriesNumber:      intPtr(2),
		PatientName:       "DOE^JOHN",
		Modality:          "CT",
		Rows:              512,
		Columns:           512,
		WindowCenter:      floatPtr(40),
		WindowWidth:       floatPtr(400),
	}

	study := moduleFields("generalStudy", meta)
	if study == nil || study["studyInstanceUid"] != "1.2.3" {
		t.Errorf("generalStudy projection wrong: %v", study)
	}

	series := moduleFields("generalSeries", meta)
	if series["modality"] != "CT" || series["seriesNumber"] != 2 {
		t.Errorf("generalSeries projection wrong: %v", series)
	}

	img := moduleFields("generalImage", meta)
	if img["instanceNumber"] != 7 {
		t.Errorf("generalImage projection wrong: %v", img)
	}

	voi := moduleFields("voiLut", meta)
	if voi["windowCenter"] != 40.0 || voi["windowWidth"] != 400.0 {
		t.Errorf("voiLut projection wrong: %v", voi)
	}
}

func TestModuleFieldsAbsentModule(t *testing.T) {
	meta := &models.MetadataRecord{StudyInstanceUID: "1.2.3"}

	// No rescale tags present: absence is nil, not an error shape.
	if got := moduleFields("modalityLut", meta); got != nil {
		t.Errorf("expected nil for empty module, got %v", got)
	}
	if got := moduleFields("no-such-module", meta); got != nil {
		t.Errorf("expected nil for unknown module, got %v", got)
	}
}

func TestRegisterFileRejectsEmpty(t *testing.T) {
	loader := NewDICOMLoader()

	if _, err := loader.RegisterFile(context.Background(), nil); err == nil {
		t.Errorf("expected error for empty input")
	}
	if _, err := loader.RegisterFile(context.Background(), []byte("not a dicom file")); err == nil {
		t.Errorf("expected error for junk input")
	}
	if loader.Len() != 0 {
		t.Errorf("failed registrations must not leak handles")
	}
}

func TestUnknownHandle(t *testing.T) {
	loader := NewDICOMLoader()

	if _, err := loader.ExtractMetadata(context.Background(), "never-issued"); err != ErrUnknownHandle {
		t.Errorf("expected ErrUnknownHandle, got %v", err)
	}
	if _, err := loader.FileBytes(context.Background(), "never-issued"); err != ErrUnknownHandle {
		t.Errorf("expected ErrUnknownHandle, got %v", err)
	}
}
