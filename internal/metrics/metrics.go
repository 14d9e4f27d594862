// Package metrics provides Prometheus metrics for kbdocs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciliation metrics
	reconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbdocs_reconcile_runs_total",
			Help: "Total number of reconciliation passes",
		},
		[]string{"project"},
	)

	reconciledFiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kbdocs_reconciled_files",
			Help: "Number of entries in the last reconciled list",
		},
		[]string{"project"},
	)

	corruptedFiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kbdocs_corrupted_files",
			Help: "Number of storage objects missing from both indexes",
		},
		[]string{"project"},
	)

	sourceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbdocs_source_fetch_total",
			Help: "Source listing fetches by source and status",
		},
		[]string{"source", "status"},
	)

	// Lifecycle command metrics
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbdocs_commands_total",
			Help: "Store commands issued by the lifecycle controller",
		},
		[]string{"command", "status"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kbdocs_command_duration_seconds",
			Help:    "Store command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// Content cache metrics
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbdocs_content_cache_lookups_total",
			Help: "Content cache lookups by result",
		},
		[]string{"result"},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kbdocs_content_cache_entries",
			Help: "Number of cached content entries",
		},
	)

	// Storage metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kbdocs_storage_operation_duration_seconds",
			Help:    "Blob storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbdocs_storage_operations_total",
			Help: "Total blob storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kbdocs_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kbdocs_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// Notification metrics
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbdocs_notifications_total",
			Help: "Notifications published by type and status",
		},
		[]string{"type", "status"},
	)

	subscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kbdocs_notification_subscribers_active",
			Help: "Number of active notification subscribers",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordReconcile records one reconciliation pass.
func RecordReconcile(project string, total, corrupted int) {
	reconcileRunsTotal.WithLabelValues(project).Inc()
	reconciledFiles.WithLabelValues(project).Set(float64(total))
	corruptedFiles.WithLabelValues(project).Set(float64(corrupted))
}

// RecordSourceFetch records a source listing fetch.
func RecordSourceFetch(source string, success bool) {
	sourceFetchTotal.WithLabelValues(source, statusLabel(success)).Inc()
}

// RecordCommand records a lifecycle store command.
func RecordCommand(command string, duration time.Duration, success bool) {
	commandsTotal.WithLabelValues(command, statusLabel(success)).Inc()
	commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordCacheLookup records a content cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// SetCacheEntries sets the number of cached content entries.
func SetCacheEntries(count int) {
	cacheEntries.Set(float64(count))
}

// RecordStorageOperation records a blob storage operation.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// RecordNotification records a published notification.
func RecordNotification(eventType string, success bool) {
	notificationsTotal.WithLabelValues(eventType, statusLabel(success)).Inc()
}

// SetSubscribersActive sets the number of notification subscribers.
func SetSubscribersActive(count int64) {
	subscribersActive.Set(float64(count))
}
