package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Buckets for library API calls; the client gives up at 10s so nothing lands above that.
	CustomAPIBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 10}

	// HTTP Metrics (kiosk surface)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_server_active_requests",
			Help: "Number of active HTTP requests",
		},
		[]string{"http_request_method"},
	)

	// Library API client metrics
	LibraryAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_api_client_operation_duration_seconds",
			Help:    "Library API operation duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"operation", "status"},
	)

	LibraryAPIRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_api_client_operation_total",
			Help: "Total number of library API operations",
		},
		[]string{"operation", "status"},
	)

	// Connection health
	BackendConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiosk_backend_connected",
			Help: "1 if the last health check reached the library API, 0 otherwise",
		},
	)

	ConnectionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_connection_checks_total",
			Help: "Total number of connection health checks",
		},
		[]string{"result", "trigger"},
	)

	// Business Metrics
	StatusLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_status_lookups_total",
			Help: "Total number of student status lookups by result",
		},
		[]string{"result"},
	)

	ToggleSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_toggle_submissions_total",
			Help: "Total number of sign-in/out submissions",
		},
		[]string{"path", "outcome"},
	)

	SignInOutActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_sign_actions_total",
			Help: "Total number of successful sign-ins and sign-outs",
		},
		[]string{"action"},
	)

	VisitReasons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_visit_reasons_total",
			Help: "Total number of sign-ins per visit reason",
		},
		[]string{"reason"},
	)

	FlowCancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_flow_cancellations_total",
			Help: "Total number of flows closed without a successful submission",
		},
		[]string{"step"},
	)

	// Cache Metrics
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Number of entries in cache",
		},
		[]string{"cache_name"},
	)

	// Event broadcast
	EventPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_event_publishes_total",
			Help: "Total number of sign-in/out events published",
		},
		[]string{"status"},
	)

	// Infrastructure Metrics
	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_runtime_go_goroutines",
			Help: "Number of goroutines",
		},
	)

	HeapAlloc = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_runtime_go_mem_heap_alloc_bytes",
			Help: "Heap allocated bytes",
		},
	)
)

// RecordInfrastructureMetrics collects infrastructure metrics periodically until ctx is done
func RecordInfrastructureMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var m runtime.MemStats
				runtime.ReadMemStats(&m)

				GoRoutines.Set(float64(runtime.NumGoroutine()))
				HeapAlloc.Set(float64(m.HeapAlloc))
			}
		}
	}()
}

// MeasureDuration measures the duration of an operation
func MeasureDuration(start time.Time) float64 {
	return time.Since(start).Seconds()
}
