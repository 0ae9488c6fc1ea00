package imaging

import (
	"strconv"
	"strings"

	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// extractRecord builds the metadata snapshot from a parsed dataset.
// Every field is optional; absent tags simply leave the zero or nil
// value in place.
func extractRecord(ds *dicom.Dataset) *models.MetadataRecord {
	rec := &models.MetadataRecord{
		StudyInstanceUID:  stringTag(ds, tag.StudyInstanceUID),
		SeriesInstanceUID: stringTag(ds, tag.SeriesInstanceUID),
		SOPInstanceUID:    stringTag(ds, tag.SOPInstanceUID),
		InstanceNumber:    intTag(ds, tag.InstanceNumber),
		SeriesNumber:      intTag(ds, tag.SeriesNumber),
		PatientName:       stringTag(ds, tag.PatientName),
		PatientID:         stringTag(ds, tag.PatientID),
		StudyDate:         stringTag(ds, tag.StudyDate),
		StudyDescription:  stringTag(ds, tag.StudyDescription),
		SeriesDescription: stringTag(ds, tag.SeriesDescription),
		Modality:          stringTag(ds, tag.Modality),
		PixelSpacing:      floatsTag(ds, tag.PixelSpacing),
		WindowCenter:      floatTag(ds, tag.WindowCenter),
		WindowWidth:       floatTag(ds, tag.WindowWidth),
		RescaleSlope:      floatTag(ds, tag.RescaleSlope),
		RescaleIntercept:  floatTag(ds, tag.RescaleIntercept),
		TransferSyntaxUID: stringTag(ds, tag.TransferSyntaxUID),
	}

	if v := intTag(ds, tag.Rows); v != nil {
		rec.Rows = *v
	}
	if v := intTag(ds, tag.Columns); v != nil {
		rec.Columns = *v
	}

	return rec
}

// moduleFields projects a metadata record onto one DICOM information
// module. A module with no populated fields yields nil, which callers
// treat as "no data", not an error.
func moduleFields(module string, meta *models.MetadataRecord) map[string]interface{} {
	fields := make(map[string]interface{})

	switch module {
	case "patient":
		putString(fields, "patientName", meta.PatientName)
		putString(fields, "patientId", meta.PatientID)
	case "generalStudy":
		putString(fields, "studyInstanceUid", meta.StudyInstanceUID)
		putString(fields, "studyDate", meta.StudyDate)
		putString(fields, "studyDescription", meta.StudyDescription)
	case "generalSeries":
		putString(fields, "seriesInstanceUid", meta.SeriesInstanceUID)
		putString(fields, "modality", meta.Modality)
		putString(fields, "seriesDescription", meta.SeriesDescription)
		putInt(fields, "seriesNumber", meta.SeriesNumber)
	case "generalImage":
		putString(fields, "sopInstanceUid", meta.SOPInstanceUID)
		putInt(fields, "instanceNumber", meta.InstanceNumber)
	case "imagePixel":
		if meta.Rows > 0 {
			fields["rows"] = meta.Rows
		}
		if meta.Columns > 0 {
			fields["columns"] = meta.Columns
		}
		if len(meta.PixelSpacing) > 0 {
			fields["pixelSpacing"] = meta.PixelSpacing
		}
	case "voiLut":
		putFloat(fields, "windowCenter", meta.WindowCenter)
		putFloat(fields, "windowWidth", meta.WindowWidth)
	case "modalityLut":
		putFloat(fields, "rescaleSlope", meta.RescaleSlope)
		putFloat(fields, "rescaleIntercept", meta.RescaleIntercept)
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func putString(m map[string]interface{}, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func putInt(m map[string]interface{}, key string, v *int) {
	if v != nil {
		m[key] = *v
	}
}

func putFloat(m map[string]interface{}, key string, v *float64) {
	if v != nil {
		m[key] = *v
	}
}

// stringTag returns the first string value of a tag, trimmed of the
// padding DICOM string VRs carry.
func stringTag(ds *dicom.Dataset, t tag.Tag) string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return ""
	}
	if vals, ok := el.Value.GetValue().([]string); ok && len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// intTag reads an integer tag. IS values arrive as strings, US/SS as
// ints; both are handled.
func intTag(ds *dicom.Dataset, t tag.Tag) *int {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return nil
	}
	switch vals := el.Value.GetValue().(type) {
	case []int:
		if len(vals) > 0 {
			n := vals[0]
			return &n
		}
	case []string:
		if len(vals) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(vals[0])); err == nil {
				return &n
			}
		}
	}
	return nil
}

// floatTag reads a decimal-string tag (DS VR).
func floatTag(ds *dicom.Dataset, t tag.Tag) *float64 {
	vals := floatsTag(ds, t)
	if len(vals) == 0 {
		return nil
	}
	f := vals[0]
	return &f
}

func floatsTag(ds *dicom.Dataset, t tag.Tag) []float64 {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return nil
	}
	switch vals := el.Value.GetValue().(type) {
	case []float64:
		return vals
	case []string:
		out := make([]float64, 0, len(vals))
		for _, s := range vals {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				out = append(out, f)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
