package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the gateway.
type Metrics struct {
	TokenRequests    *prometheus.CounterVec
	TokensIssued     prometheus.Counter
	ProvisionResults *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	WebhookEvents    *prometheus.CounterVec
	WebhookRejected  prometheus.Counter
	LiveRooms        prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TokenRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_requests_total",
			Help:      "Token requests by result.",
		}, []string{"result"}),
		TokensIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Signed participant tokens handed out.",
		}),
		ProvisionResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_results_total",
			Help:      "Room provisioning attempts by outcome class.",
		}, []string{"outcome"}),
		RequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_request_duration_ms",
			Help:      "End-to-end token request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Verified room lifecycle webhook events by type.",
		}, []string{"event"}),
		WebhookRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_rejected_total",
			Help:      "Webhook deliveries rejected at verification.",
		}),
		LiveRooms: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_rooms",
			Help:      "Rooms currently live according to lifecycle events.",
		}),
	}
}

func (m *Metrics) ObserveRequestDuration(d time.Duration) {
	m.RequestDuration.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
