package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libforge_build_failed_total",
			Help: "Number of times a build has failed",
		},
		[]string{"project", "error_kind"},
	)

	BuildCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "libforge_build_count_total",
			Help: "Total number of builds",
		},
	)

	BuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "libforge_build_duration_seconds",
			Help:    "Build duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"project"},
	)

	LastBuildStart = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "libforge_last_build_start_timestamp",
			Help: "Unix timestamp of when the last build started",
		},
		[]string{"project"},
	)

	LastBuildEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "libforge_last_build_end_timestamp",
			Help: "Unix timestamp of when the last build ended",
		},
		[]string{"project"},
	)

	ArtifactBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "libforge_artifact_bytes",
			Help: "Size of the last emitted artifact",
		},
		[]string{"project", "path"},
	)
)

// WriteTextfile writes every registered metric to filename in the
// node-exporter textfile format.
func WriteTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, prometheus.DefaultGatherer)
}
