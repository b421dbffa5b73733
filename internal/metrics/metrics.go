package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tripdesk"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "status"},
	)

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Payment gateway calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Payment gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	reservationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Reservation writes by product kind and outcome (created or duplicate).",
		},
		[]string{"kind", "outcome"},
	)

	reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Charge reconciliations by product kind and result.",
		},
		[]string{"kind", "result"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Inbound gateway webhook events by type and result.",
		},
		[]string{"type", "result"},
	)

	degradedCharges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_charges_total",
			Help:      "Synthetic charges issued while the gateway was unavailable.",
		},
		[]string{"kind"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			gatewayRequests,
			gatewayDuration,
			reservationsCreated,
			reconciliations,
			webhookEvents,
			degradedCharges,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint, status string) {
	httpRequests.WithLabelValues(endpoint, status).Inc()
}

func ObserveGateway(operation, outcome string, elapsed time.Duration) {
	gatewayRequests.WithLabelValues(operation, outcome).Inc()
	gatewayDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func IncReservation(kind, outcome string) {
	reservationsCreated.WithLabelValues(kind, outcome).Inc()
}

func IncReconciliation(kind, result string) {
	reconciliations.WithLabelValues(kind, result).Inc()
}

func IncWebhook(eventType, result string) {
	webhookEvents.WithLabelValues(eventType, result).Inc()
}

func IncDegradedCharge(kind string) {
	degradedCharges.WithLabelValues(kind).Inc()
}
