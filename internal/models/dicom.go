package models

// MetadataRecord is the extracted, read-only snapshot of one image's
// DICOM attributes. It is created once when the image is registered
// with the imaging loader and never mutated afterwards. Pointer fields
// distinguish "absent from the file" from a zero value.
type MetadataRecord struct {
	StudyInstanceUID  string    `json:"study_instance_uid,omitempty"`
	SeriesInstanceUID string    `json:"series_instance_uid,omitempty"`
	SOPInstanceUID    string    `json:"sop_instance_uid,omitempty"`
	InstanceNumber    *int      `json:"instance_number,omitempty"`
	SeriesNumber      *int      `json:"series_number,omitempty"`
	PatientName       string    `json:"patient_name,omitempty"`
	PatientID         string    `json:"patient_id,omitempty"`
	StudyDate         string    `json:"study_date,omitempty"`
	StudyDescription  string    `json:"study_description,omitempty"`
	SeriesDescription string    `json:"series_description,omitempty"`
	Modality          string    `json:"modality,omitempty"`
	Rows              int       `json:"rows,omitempty"`
	Columns           int       `json:"columns,omitempty"`
	PixelSpacing      []float64 `json:"pixel_spacing,omitempty"`
	WindowCenter      *float64  `json:"window_center,omitempty"`
	WindowWidth       *float64  `json:"window_width,omitempty"`
	RescaleSlope      *float64  `json:"rescale_slope,omitempty"`
	RescaleIntercept  *float64  `json:"rescale_intercept,omitempty"`
	TransferSyntaxUID string    `json:"transfer_syntax_uid,omitempty"`
}

// DicomImage is one instance inside a grouped series. ImageID is the
// session-scoped handle issued by the imaging loader.
type DicomImage struct {
	ImageID  string          `json:"image_id"`
	Metadata *MetadataRecord `json:"metadata,omitempty"`
}

// DicomSeries groups the instances of one acquisition run. Images are
// ordered by instance number ascending, missing numbers last.
type DicomSeries struct {
	SeriesInstanceUID string       `json:"series_instance_uid"`
	SeriesNumber      *int         `json:"series_number,omitempty"`
	Modality          string       `json:"modality,omitempty"`
	SeriesDescription string       `json:"series_description,omitempty"`
	Images            []DicomImage `json:"images"`
}

// DicomStudy is the root of the grouped hierarchy for one patient
// visit. Series are ordered by series number ascending, missing
// numbers last.
type DicomStudy struct {
	StudyInstanceUID string        `json:"study_instance_uid"`
	PatientName      string        `json:"patient_name,omitempty"`
	StudyDate        string        `json:"study_date,omitempty"`
	StudyDescription string        `json:"study_description,omitempty"`
	Series           []DicomSeries `json:"series"`
}

// ImageCount returns the number of instances across all series.
func (s *DicomStudy) ImageCount() int {
	n := 0
	for _, ser := range s.Series {
		n += len(ser.Images)
	}
	return n
}
