package dev

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// devMetrics holds the dev server metrics. A nil *devMetrics records
// nothing.
type devMetrics struct {
	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	bundleBytes   prometheus.Gauge
	reloads       *prometheus.CounterVec
	reloadClients prometheus.GaugeFunc
	missedInits   *prometheus.CounterVec
	cycles        prometheus.Counter
}

func newDevMetrics(reg prometheus.Registerer, clients func() float64) *devMetrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)

	return &devMetrics{
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotshim",
			Subsystem: "dev",
			Name:      "builds_total",
			Help:      "Total number of bundle builds by status",
		}, []string{"status"}),

		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hotshim",
			Subsystem: "dev",
			Name:      "build_duration_seconds",
			Help:      "Bundle build duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		bundleBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hotshim",
			Subsystem: "dev",
			Name:      "bundle_bytes",
			Help:      "Size of the last successful bundle output in bytes",
		}),

		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotshim",
			Subsystem: "dev",
			Name:      "reloads_total",
			Help:      "Total number of reload messages broadcast by type",
		}, []string{"type"}),

		reloadClients: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "hotshim",
			Subsystem: "dev",
			Name:      "reload_clients",
			Help:      "Number of connected live reload clients",
		}, clients),

		missedInits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotshim",
			Subsystem: "dev",
			Name:      "missed_inits_total",
			Help:      "Native modules that were not initialised in time",
		}, []string{"shim"}),

		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hotshim",
			Subsystem: "dev",
			Name:      "module_cycles_total",
			Help:      "Total number of native module hot replacements",
		}),
	}
}

func (m *devMetrics) recordBuild(result BuildResult) {
	if m == nil {
		return
	}
	status := "success"
	if !result.Success {
		status = "failure"
	}
	m.builds.WithLabelValues(status).Inc()
	m.buildDuration.Observe(result.Duration.Seconds())
	if result.Success {
		m.bundleBytes.Set(float64(result.Stats.OutputBytes))
	}
}

func (m *devMetrics) recordReload(kind ReloadMessageType) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(string(kind)).Inc()
}

func (m *devMetrics) recordMissedInit(identity string) {
	if m == nil {
		return
	}
	m.missedInits.WithLabelValues(identity).Inc()
}

func (m *devMetrics) recordCycle() {
	if m == nil {
		return
	}
	m.cycles.Inc()
}
