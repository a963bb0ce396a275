package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModulesTransformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libforge_modules_transformed_total",
			Help: "Total number of modules run through the transform pipeline",
		},
		[]string{"project"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "libforge_transform_stage_duration_seconds",
			Help:    "Duration of a single transform stage on one module",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"stage"},
	)
)
