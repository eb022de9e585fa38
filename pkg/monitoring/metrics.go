package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection. Each collector owns
// its registry so several can coexist in one process.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	qrGeneratedTotal    *prometheus.CounterVec
	payloadBytes        *prometheus.HistogramVec
	scansTotal          *prometheus.CounterVec
	decodeFailuresTotal *prometheus.CounterVec
	resolverDuration    *prometheus.HistogramVec
	systemErrors        *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		qrGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zeronet_qr_generated_total",
				Help: "Total number of emergency QR codes generated",
			},
			[]string{"mode", "compacted", "service"},
		),
		payloadBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zeronet_payload_bytes",
				Help:    "Size of generated Zero-Net payloads in bytes",
				Buckets: []float64{50, 100, 150, 200, 250, 300, 350, 400},
			},
			[]string{"form", "service"},
		),
		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zeronet_scans_total",
				Help: "Total number of emergency link scans by final state",
			},
			[]string{"outcome", "source", "service"},
		),
		decodeFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zeronet_decode_failures_total",
				Help: "Total number of embedded payloads that failed to decode",
			},
			[]string{"code", "service"},
		),
		resolverDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zeronet_resolver_duration_seconds",
				Help:    "Duration of legacy profile lookups in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 4.0, 8.0},
			},
			[]string{"source", "status", "service"},
		),
		systemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "system_errors_total",
				Help: "Total number of system errors",
			},
			[]string{"error_type", "service", "component"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.qrGeneratedTotal,
		m.payloadBytes,
		m.scansTotal,
		m.decodeFailuresTotal,
		m.resolverDuration,
		m.systemErrors,
	)

	return m
}

// Registry exposes the collector's registry
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordQRGenerated records a generated QR code. Payload sizes are only
// observed for zero-net codes.
func (m *MetricsCollector) RecordQRGenerated(mode string, compacted bool, rawBytes, packedBytes int) {
	m.qrGeneratedTotal.WithLabelValues(mode, strconv.FormatBool(compacted), m.serviceName).Inc()
	if rawBytes > 0 {
		m.payloadBytes.WithLabelValues("raw", m.serviceName).Observe(float64(rawBytes))
		m.payloadBytes.WithLabelValues("packed", m.serviceName).Observe(float64(packedBytes))
	}
}

// RecordScan records the final state of an emergency access
func (m *MetricsCollector) RecordScan(outcome, source string) {
	m.scansTotal.WithLabelValues(outcome, source, m.serviceName).Inc()
}

// RecordDecodeFailure records an embedded payload rejected with code
func (m *MetricsCollector) RecordDecodeFailure(code string) {
	m.decodeFailuresTotal.WithLabelValues(code, m.serviceName).Inc()
}

// RecordResolve records a legacy lookup against source
func (m *MetricsCollector) RecordResolve(source, status string, duration time.Duration) {
	m.resolverDuration.WithLabelValues(source, status, m.serviceName).Observe(duration.Seconds())
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	m.systemErrors.WithLabelValues(errorType, m.serviceName, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
