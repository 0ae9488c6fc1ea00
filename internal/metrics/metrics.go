package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Library gauges are refreshed on every stats query; counters track
// study operations since process start.
var (
	StudyCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xrayviewer_library_studies",
		Help: "Number of studies in the library.",
	})

	ImageCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xrayviewer_library_images",
		Help: "Number of stored images across all studies.",
	})

	LibraryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xrayviewer_library_bytes",
		Help: "Total size of stored DICOM payloads in bytes.",
	})

	StorageUsedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xrayviewer_storage_used_bytes",
		Help: "Bytes used by the storage engine, zero when unknown.",
	})

	StorageQuotaBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xrayviewer_storage_quota_bytes",
		Help: "Configured storage quota in bytes, zero when unknown.",
	})

	StudySaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xrayviewer_study_saves_total",
		Help: "Studies saved to the library.",
	})

	StudyLoads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xrayviewer_study_loads_total",
		Help: "Studies loaded from the library.",
	})

	StudyDeletes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xrayviewer_study_deletes_total",
		Help: "Studies deleted from the library.",
	})

	SaveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xrayviewer_study_save_failures_total",
		Help: "Failed study saves by reason.",
	}, []string{"reason"})
)
