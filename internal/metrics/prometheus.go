package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// translationRunsTotal counts translation runs by model and terminal phase.
	translationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingorelay_translation_runs_total",
			Help: "Total translation runs by lifecycle phase",
		},
		[]string{"model", "phase"},
	)

	// segmentsProcessedTotal counts segments successfully processed by
	// completed chunked runs.
	segmentsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingorelay_segments_processed_total",
			Help: "Total segments processed by completed chunked runs",
		},
		[]string{"model"},
	)

	// registered ensures collectors are registered once.
	registered atomic.Bool
	enabled    atomic.Bool
)

// SetEnabled toggles Prometheus metrics collection.
func SetEnabled(on bool) {
	enabled.Store(on)
}

// Enabled reports whether metrics collection is enabled.
func Enabled() bool {
	return enabled.Load()
}

// Register registers the lifecycle collectors with the default registry.
// It is safe to call multiple times.
func Register() {
	if !registered.CompareAndSwap(false, true) {
		return
	}
	prometheus.MustRegister(
		translationRunsTotal,
		segmentsProcessedTotal,
	)
}

func recordRunStarted(model string) {
	if !Enabled() {
		return
	}
	Register()
	translationRunsTotal.WithLabelValues(model, StatusStarted).Inc()
}

func recordRunCompleted(model string, segments int) {
	if !Enabled() {
		return
	}
	Register()
	translationRunsTotal.WithLabelValues(model, StatusCompleted).Inc()
	if segments > 0 {
		segmentsProcessedTotal.WithLabelValues(model).Add(float64(segments))
	}
}

func recordRunFailed(model string) {
	if !Enabled() {
		return
	}
	Register()
	translationRunsTotal.WithLabelValues(model, StatusFailed).Inc()
}
