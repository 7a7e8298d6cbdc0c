package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Engine metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// File storage metrics
	FilesUploadedTotal   *prometheus.CounterVec
	FileBytesStoredTotal *prometheus.CounterVec

	// Notification metrics
	ActiveSubscribers  *prometheus.GaugeVec
	NotificationsTotal *prometheus.CounterVec

	// Business metrics
	ResourcesTotal *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataroom_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dataroom_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dataroom_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dataroom_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Engine metrics
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataroom_operations_total",
				Help: "Total number of resource operations",
			},
			[]string{"resource_type", "operation", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dataroom_operation_duration_seconds",
				Help:    "Resource operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource_type", "operation"},
		),

		// File storage metrics
		FilesUploadedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataroom_files_uploaded_total",
				Help: "Total number of files attached to resource sections",
			},
			[]string{"resource_type", "section"},
		),
		FileBytesStoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataroom_file_bytes_stored_total",
				Help: "Total bytes written to the file store",
			},
			[]string{"resource_type", "section"},
		),

		// Notification metrics
		ActiveSubscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dataroom_active_subscribers",
				Help: "Number of open change-notification subscriptions",
			},
			[]string{"resource_type"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataroom_notifications_total",
				Help: "Total number of published change notifications",
			},
			[]string{"resource_type", "operation"},
		),

		// Business metrics
		ResourcesTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dataroom_resources_total",
				Help: "Total number of resources per type",
			},
			[]string{"resource_type"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.OperationsTotal,
		m.OperationDuration,
		m.FilesUploadedTotal,
		m.FileBytesStoredTotal,
		m.ActiveSubscribers,
		m.NotificationsTotal,
		m.ResourcesTotal,
	)

	return m
}

// ObserveOperation records one resource engine operation.
func (m *Metrics) ObserveOperation(resourceType, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OperationsTotal.WithLabelValues(resourceType, operation, result).Inc()
	m.OperationDuration.WithLabelValues(resourceType, operation).Observe(time.Since(started).Seconds())
}

// ObserveUpload records one file stored for a resource section.
func (m *Metrics) ObserveUpload(resourceType, section string, size int) {
	if m == nil {
		return
	}
	m.FilesUploadedTotal.WithLabelValues(resourceType, section).Inc()
	m.FileBytesStoredTotal.WithLabelValues(resourceType, section).Add(float64(size))
}

// ObserveNotification records one published change notification.
func (m *Metrics) ObserveNotification(resourceType, operation string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(resourceType, operation).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler returns the /metrics endpoint handler.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
