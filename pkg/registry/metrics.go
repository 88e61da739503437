package registry

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures a Registry.
type Config struct {
	// Logger receives duplicate registration warnings.
	// Default: slog.Default()
	Logger *slog.Logger

	// Registerer receives the registry metrics. Metrics are disabled when nil.
	Registerer prometheus.Registerer

	// Namespace is the metrics namespace (default: "hotshim").
	Namespace string

	// Subsystem is the metrics subsystem (default: "registry").
	Subsystem string
}

// Option configures a Registry.
type Option func(*Config)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithRegisterer enables metrics on the given prometheus registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "hotshim",
		Subsystem: "registry",
	}
}

type metrics struct {
	registrations prometheus.Counter
	replacements  prometheus.Counter
	duplicates    prometheus.Counter
	entries       prometheus.Gauge
}

func newMetrics(cfg Config) *metrics {
	factory := promauto.With(cfg.Registerer)

	return &metrics{
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "registrations_total",
			Help:      "Total number of modules published",
		}),
		replacements: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "replacements_total",
			Help:      "Total number of publishes that overwrote an existing key",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "duplicate_registrations_total",
			Help:      "Total number of publishes that overwrote a key owned by another application",
		}),
		entries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "entries",
			Help:      "Number of modules currently published",
		}),
	}
}

// metrics methods are nil-safe.

func (m *metrics) incRegistration(replaced bool) {
	if m == nil {
		return
	}
	m.registrations.Inc()
	if replaced {
		m.replacements.Inc()
	}
}

func (m *metrics) incDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *metrics) setEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}
