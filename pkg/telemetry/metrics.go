package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for kbforge.
type Metrics struct {
	config MetricsConfig

	// Step metrics cover both provisioning and teardown; the component
	// label separates them.
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Document metrics
	documentsUploaded prometheus.Counter
	documentsDeleted  prometheus.Counter

	// Ingestion metrics
	ingestionPolls       prometheus.Counter
	ingestionTransitions prometheus.Counter
	ingestionJobs        *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

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

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of lifecycle steps executed",
			},
			[]string{"component", "step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of lifecycle steps in seconds",
				Buckets:   buckets,
			},
			[]string{"component", "step"},
		),

		documentsUploaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_uploaded_total",
				Help:      "Total number of documents uploaded to the document bucket",
			},
		),
		documentsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_deleted_total",
				Help:      "Total number of documents deleted during cleanup",
			},
		),

		ingestionPolls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestion_polls_total",
				Help:      "Total number of ingestion job status polls",
			},
		),
		ingestionTransitions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestion_status_transitions_total",
				Help:      "Total number of observed ingestion status transitions",
			},
		),
		ingestionJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestion_jobs_total",
				Help:      "Total number of ingestion jobs by terminal status",
			},
			[]string{"status"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by service error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.stepsExecuted,
		m.stepDuration,
		m.documentsUploaded,
		m.documentsDeleted,
		m.ingestionPolls,
		m.ingestionTransitions,
		m.ingestionJobs,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// RecordStep records the execution of one lifecycle step.
func (m *Metrics) RecordStep(component, step, status string, duration time.Duration) {
	if m.stepsExecuted == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(component, step, status).Inc()
	m.stepDuration.WithLabelValues(component, step).Observe(duration.Seconds())
}

// AddDocumentsUploaded adds to the uploaded document counter.
func (m *Metrics) AddDocumentsUploaded(n int) {
	if m.documentsUploaded == nil {
		return
	}
	m.documentsUploaded.Add(float64(n))
}

// AddDocumentsDeleted adds to the deleted document counter.
func (m *Metrics) AddDocumentsDeleted(n int) {
	if m.documentsDeleted == nil {
		return
	}
	m.documentsDeleted.Add(float64(n))
}

// IncPolls increments the ingestion poll counter.
func (m *Metrics) IncPolls() {
	if m.ingestionPolls == nil {
		return
	}
	m.ingestionPolls.Inc()
}

// IncStatusTransitions increments the status transition counter.
func (m *Metrics) IncStatusTransitions() {
	if m.ingestionTransitions == nil {
		return
	}
	m.ingestionTransitions.Inc()
}

// RecordIngestionJob records an ingestion job reaching a terminal status.
func (m *Metrics) RecordIngestionJob(status string) {
	if m.ingestionJobs == nil {
		return
	}
	m.ingestionJobs.WithLabelValues(status).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
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

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
