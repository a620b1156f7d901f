package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the lamina engine.
type Metrics struct {
	config MetricsConfig

	// Entity mutation metrics
	entityMutations *prometheus.CounterVec
	entitiesManaged *prometheus.GaugeVec

	// Resolution metrics
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec

	// Validation metrics
	validationRuns     *prometheus.CounterVec
	validationFindings *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec

	// Generation metrics
	generationRuns     *prometheus.CounterVec
	generatedFiles     *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// UI config cache metrics
	cacheLookups *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		entityMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entity_mutations_total",
				Help:      "Total number of entity mutations by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		entitiesManaged: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "entities_managed",
				Help:      "Current number of entities per namespace",
			},
			[]string{"namespace"},
		),

		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of configuration resolutions",
			},
			[]string{"status"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of configuration resolution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		validationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_runs_total",
				Help:      "Total number of namespace validation sweeps",
			},
			[]string{"status"},
		),
		validationFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_findings_total",
				Help:      "Total number of validation findings by severity",
			},
			[]string{"severity"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validation_duration_seconds",
				Help:      "Duration of namespace validation in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		generationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_runs_total",
				Help:      "Total number of artifact generation runs",
			},
			[]string{"status"},
		),
		generatedFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generated_files_total",
				Help:      "Total number of artifact files written",
			},
			[]string{"namespace"},
		),
		generationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Duration of artifact generation in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ui_config_cache_lookups_total",
				Help:      "Total number of UI config cache lookups",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.entityMutations,
		m.entitiesManaged,
		m.resolutions,
		m.resolutionDuration,
		m.validationRuns,
		m.validationFindings,
		m.validationDuration,
		m.generationRuns,
		m.generatedFiles,
		m.generationDuration,
		m.errorsByKind,
		m.cacheLookups,
	)

	return m, nil
}

// RecordMutation records an entity mutation with its outcome.
func (m *Metrics) RecordMutation(operation, status string) {
	if m.entityMutations == nil {
		return
	}
	m.entityMutations.WithLabelValues(operation, status).Inc()
}

// SetEntityCount sets the current entity count for a namespace.
func (m *Metrics) SetEntityCount(namespace string, count float64) {
	if m.entitiesManaged == nil {
		return
	}
	m.entitiesManaged.WithLabelValues(namespace).Set(count)
}

// RecordResolution records a configuration resolution with its duration.
func (m *Metrics) RecordResolution(status string, duration time.Duration) {
	if m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(status).Inc()
	m.resolutionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordValidation records a validation sweep with its finding counts.
func (m *Metrics) RecordValidation(status string, duration time.Duration, errors, warnings int) {
	if m.validationRuns == nil {
		return
	}
	m.validationRuns.WithLabelValues(status).Inc()
	m.validationDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.validationFindings.WithLabelValues("error").Add(float64(errors))
	m.validationFindings.WithLabelValues("warning").Add(float64(warnings))
}

// RecordGeneration records an artifact generation run.
func (m *Metrics) RecordGeneration(namespace, status string, duration time.Duration, files int) {
	if m.generationRuns == nil {
		return
	}
	m.generationRuns.WithLabelValues(status).Inc()
	m.generationDuration.WithLabelValues(status).Observe(duration.Seconds())
	if files > 0 {
		m.generatedFiles.WithLabelValues(namespace).Add(float64(files))
	}
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// RecordCacheLookup records a UI config cache lookup outcome (hit, miss).
func (m *Metrics) RecordCacheLookup(result string) {
	if m.cacheLookups == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
