package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// WS метрики - количество активных соединений
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	// Релей: сколько конвертов доставлено, по типу
	relayEnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_envelopes_total",
			Help: "Количество доставленных конвертов сигналинга",
		},
		[]string{"type"},
	)

	// Релей: сколько конвертов молча отброшено (нет живого адресата)
	relayDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_envelopes_dropped_total",
			Help: "Количество отброшенных конвертов сигналинга",
		},
		[]string{"type"},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func EnvelopeDelivered(envType string) {
	relayEnvelopesTotal.WithLabelValues(envType).Inc()
}

func EnvelopeDropped(envType string) {
	relayDroppedTotal.WithLabelValues(envType).Inc()
}
