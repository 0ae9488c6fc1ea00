package grouping

import (
	"context"
	"sort"

	"github.com/l0lsec/XRayViewer/internal/imaging"
	"github.com/l0lsec/XRayViewer/internal/models"
	"github.com/l0lsec/XRayViewer/pkg/logger"
	"github.com/rs/zerolog"
)

// Sentinel identifiers for images whose metadata carries no usable
// study or series UID. All such images share the one synthetic bucket.
// The sentinels exist only at the boundary; internally unidentified
// containers are tracked as a tagged key, so a real UID that happened
// to equal the sentinel string would still group separately.
const (
	UnknownStudyUID  = "unknown-study"
	UnknownSeriesUID = "unknown-series"
)

// uidKey distinguishes a real UID from an absent one.
type uidKey struct {
	known bool
	uid   string
}

func keyFor(uid string) uidKey {
	if uid == "" {
		return uidKey{}
	}
	return uidKey{known: true, uid: uid}
}

func (k uidKey) boundary(sentinel string) string {
	if !k.known {
		return sentinel
	}
	return k.uid
}

// Engine reconstructs the Study→Series→Image hierarchy from a flat set
// of registered image handles.
type Engine struct {
	loader imaging.Loader
	log    zerolog.Logger
}

// NewEngine creates a grouping engine over the given loader.
func NewEngine(loader imaging.Loader) *Engine {
	return &Engine{loader: loader, log: logger.For("grouping")}
}

// orderedImage pairs an image with its effective sort position. When
// the instance number is absent the image's position in the input
// batch is used instead, the same fallback the library applies when
// persisting.
type orderedImage struct {
	image models.DicomImage
	order int
}

type seriesBucket struct {
	key         uidKey
	number      *int
	modality    string
	description string
	images      []orderedImage
}

type studyBucket struct {
	key         uidKey
	patientName string
	studyDate   string
	description string
	seriesKeys  []uidKey
	series      map[uidKey]*seriesBucket
}

// Group builds the study tree for the given handles. A metadata fetch
// failure for one handle routes that image to the synthetic unknown
// bucket and never aborts the rest. The result is deterministic for a
// fixed input sequence.
func (e *Engine) Group(ctx context.Context, handles []string) []models.DicomStudy {
	studyKeys := make([]uidKey, 0)
	studies := make(map[uidKey]*studyBucket)

	for i, handle := range handles {
		meta, err := e.loader.ExtractMetadata(ctx, handle)
		if err != nil {
			e.log.Warn().Err(err).Str("image_id", handle).
				Msg("Failed to extract metadata, grouping image into unknown bucket")
			meta = nil
		}

		var studyKey, seriesKey uidKey
		if meta != nil {
			studyKey = keyFor(meta.StudyInstanceUID)
			seriesKey = keyFor(meta.SeriesInstanceUID)
		}

		study, ok := studies[studyKey]
		if !ok {
			study = &studyBucket{
				key:    studyKey,
				series: make(map[uidKey]*seriesBucket),
			}
			if meta != nil {
				study.patientName = meta.PatientName
				study.studyDate = meta.StudyDate
				study.description = meta.StudyDescription
			}
			studies[studyKey] = study
			studyKeys = append(studyKeys, studyKey)
		}

		ser, ok := study.series[seriesKey]
		if !ok {
			ser = &seriesBucket{key: seriesKey}
			if meta != nil {
				ser.number = meta.SeriesNumber
				ser.modality = meta.Modality
				ser.description = meta.SeriesDescription
			}
			study.series[seriesKey] = ser
			study.seriesKeys = append(study.seriesKeys, seriesKey)
		}

		order := i
		if meta != nil && meta.InstanceNumber != nil {
			order = *meta.InstanceNumber
		}
		ser.images = append(ser.images, orderedImage{
			image: models.DicomImage{ImageID: handle, Metadata: meta},
			order: order,
		})
	}

	return assemble(studyKeys, studies)
}

// assemble applies the ordering rules: studies by study date
// descending with undated studies last, series by series number
// ascending with unnumbered series last, images by effective instance
// number ascending. All ties keep insertion order.
func assemble(studyKeys []uidKey, studies map[uidKey]*studyBucket) []models.DicomStudy {
	out := make([]models.DicomStudy, 0, len(studyKeys))

	for _, sk := range studyKeys {
		bucket := studies[sk]
		study := models.DicomStudy{
			StudyInstanceUID: sk.boundary(UnknownStudyUID),
			PatientName:      bucket.patientName,
			StudyDate:        bucket.studyDate,
			StudyDescription: bucket.description,
			Series:           make([]models.DicomSeries, 0, len(bucket.seriesKeys)),
		}

		for _, serKey := range bucket.seriesKeys {
			serBucket := bucket.series[serKey]

			sort.SliceStable(serBucket.images, func(a, b int) bool {
				return serBucket.images[a].order < serBucket.images[b].order
			})

			series := models.DicomSeries{
				SeriesInstanceUID: serKey.boundary(UnknownSeriesUID),
				SeriesNumber:      serBucket.number,
				Modality:          serBucket.modality,
				SeriesDescription: serBucket.description,
				Images:            make([]models.DicomImage, 0, len(serBucket.images)),
			}
			for _, oi := range serBucket.images {
				series.Images = append(series.Images, oi.image)
			}
			study.Series = append(study.Series, series)
		}

		sort.SliceStable(study.Series, func(a, b int) bool {
			na, nb := study.Series[a].SeriesNumber, study.Series[b].SeriesNumber
			if na == nil {
				return false
			}
			if nb == nil {
				return true
			}
			return *na < *nb
		})

		out = append(out, study)
	}

	sort.SliceStable(out, func(a, b int) bool {
		da, db := out[a].StudyDate, out[b].StudyDate
		if da == "" {
			return false
		}
		if db == "" {
			return true
		}
		return da > db
	})

	return out
}

// Flatten produces the viewer's stack order: a flat handle sequence in
// study-major, series-major, instance-minor order, plus the indices at
// which a new series starts (index 0 excluded). The boundary indices
// drive stack navigation and the series separators in the UI.
func Flatten(studies []models.DicomStudy) ([]string, []int) {
	imageIDs := make([]string, 0)
	boundaries := make([]int, 0)

	for _, study := range studies {
		for _, series := range study.Series {
			if len(series.Images) == 0 {
				continue
			}
			if len(imageIDs) > 0 {
				boundaries = append(boundaries, len(imageIDs))
			}
			for _, img := range series.Images {
				imageIDs = append(imageIDs, img.ImageID)
			}
		}
	}

	return imageIDs, boundaries
}
