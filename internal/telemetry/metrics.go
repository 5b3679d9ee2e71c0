package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stocksync"

var (
	// BreakerState — состояние circuit breaker: 0 CLOSED, 1 HALF_OPEN, 2 OPEN.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_state",
		Help:      "Circuit breaker state per integration (0 closed, 1 half-open, 2 open)",
	}, []string{"integration"})

	// SyncDuration — длительность выполнения задачи синхронизации.
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_duration_seconds",
		Help:      "Duration of sync jobs",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
	}, []string{"type", "source", "status"})

	// RecordsSynced — количество записей, записанных в хранилище.
	RecordsSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_synced_total",
		Help:      "Records upserted into the central store",
	}, []string{"source", "entity"})

	// QueueDepth — число задач в очереди по состоянию.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_jobs",
		Help:      "Jobs per queue and state",
	}, []string{"queue", "state"})

	// JobsProcessed — результаты обработки задач очередей.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Processed queue jobs by outcome",
	}, []string{"queue", "outcome"})

	// AlertsSent — отправленные алерты.
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_total",
		Help:      "Alerts raised by type and severity",
	}, []string{"type", "severity"})

	// AlertDeliveries — доставка алертов по каналам.
	AlertDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alert_deliveries_total",
		Help:      "Alert deliveries by channel and outcome",
	}, []string{"channel", "outcome"})

	// CacheRequests — попадания и промахи кэша.
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_requests_total",
		Help:      "Cache lookups by namespace and result",
	}, []string{"namespace", "result"})

	// UpstreamRequests — длительность запросов к ERP/POS.
	UpstreamRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Upstream HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"integration", "method", "code"})

	// HTTPRequests — запросы к admin API.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Admin API requests",
	}, []string{"method", "code"})
)

// BreakerStateValue переводит состояние breaker'а в значение gauge.
func BreakerStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 2
	case "HALF_OPEN":
		return 1
	default:
		return 0
	}
}
