// Package metrics holds the Prometheus collectors of the pipeline. They are
// registered on the default registry and served by the API at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamwatch"

var (
	EntitiesChecked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entities_checked_total",
		Help:      "Tracked entities fetched and diffed successfully.",
	}, []string{"kind"})

	EntitiesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entities_skipped_total",
		Help:      "Tracked entities skipped after a per-entity failure.",
	}, []string{"kind"})

	FactsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "facts_detected_total",
		Help:      "Facts found new by a check: absent from the snapshot, or newly recorded when the snapshot is unreadable.",
	}, []string{"kind"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_sent_total",
		Help:      "Recipient deliveries that completed without error.",
	}, []string{"category"})

	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_failures_total",
		Help:      "Recipient deliveries that returned an error.",
	}, []string{"category"})

	PushTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_tokens_total",
		Help:      "Per-device push outcomes.",
	}, []string{"result"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of one batch run.",
		Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"kind"})
)
