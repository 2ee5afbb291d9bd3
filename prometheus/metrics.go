package prometheus

import (
	"catalog-service/pkg/config"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsCounter prometheus.Counter
	AuthSuccessCounter  prometheus.Counter
	AuthErrorsCounter   prometheus.Counter

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec

	// Catalog metrics
	CatalogOperationsCounter *prometheus.CounterVec
	ReconcileCounter         *prometheus.CounterVec

	// Inventory metrics
	ItemInventoryGauge *prometheus.GaugeVec

	// Event publishing metrics
	EventPublishFailures *prometheus.CounterVec
)

// InitMetrics registers the Prometheus metrics with the default registry.
// Repeated calls are no-ops.
func InitMetrics(config *config.Config) {
	once.Do(func() {
		register(config.Metrics.Prefix)
	})
}

func register(prefix string) {
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	AuthAttemptsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
	)

	AuthSuccessCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_success_total",
			Help: "Total number of successful authentications",
		},
	)

	AuthErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors",
		},
	)

	DbOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	CatalogOperationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_operations_total",
			Help: "Total number of catalog operations",
		},
		[]string{"operation"},
	)

	ReconcileCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_reconciliations_total",
			Help: "Total number of listing reconciliations by branch and result",
		},
		[]string{"branch", "result"},
	)

	ItemInventoryGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_item_inventory",
			Help: "Current aggregate inventory level for catalog items",
		},
		[]string{"item_id", "segment"},
	)

	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_event_publish_failures_total",
			Help: "Total number of catalog events that could not be published",
		},
		[]string{"event_type"},
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if DbOperationDuration == nil {
			return
		}
		DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

// RecordHTTPRequest records a served request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if HttpRequestsTotal == nil {
		return
	}
	HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordAuthAttempt counts an authentication attempt and its outcome
func RecordAuthAttempt(success bool) {
	if AuthAttemptsCounter == nil {
		return
	}
	AuthAttemptsCounter.Inc()
	if success {
		AuthSuccessCounter.Inc()
	} else {
		AuthErrorsCounter.Inc()
	}
}

// RecordCatalogOperation increments the counter for catalog operations
func RecordCatalogOperation(operation string) {
	if CatalogOperationsCounter == nil {
		return
	}
	CatalogOperationsCounter.WithLabelValues(operation).Inc()
}

// RecordReconcile counts a reconciliation attempt
func RecordReconcile(branch, result string) {
	if ReconcileCounter == nil {
		return
	}
	ReconcileCounter.WithLabelValues(branch, result).Inc()
}

// UpdateItemInventory updates the gauge for an item's aggregate quantity
func UpdateItemInventory(itemID string, segment string, total float64) {
	if ItemInventoryGauge == nil {
		return
	}
	ItemInventoryGauge.WithLabelValues(itemID, segment).Set(total)
}

// RecordEventPublishFailure counts an event that was dropped
func RecordEventPublishFailure(eventType string) {
	if EventPublishFailures == nil {
		return
	}
	EventPublishFailures.WithLabelValues(eventType).Inc()
}
