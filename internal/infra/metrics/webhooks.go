package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhooksTotal,
		webhookHandleSeconds,
	)
}

var (
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_total",
			Help: "Inbound provider notifications by provider and disposition (ok/auth_failed/malformed/ignored/retry).",
		},
		[]string{"provider", "disposition"},
	)

	webhookHandleSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_handle_seconds",
			Help:    "Webhook handling latency distribution.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"provider"},
	)
)

func IncWebhook(provider, disposition string) {
	webhooksTotal.WithLabelValues(norm(provider), norm(disposition)).Inc()
}

func ObserveWebhook(provider string, seconds float64) {
	webhookHandleSeconds.WithLabelValues(norm(provider)).Observe(seconds)
}
