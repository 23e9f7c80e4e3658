// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Total number of notification jobs published per queue",
		},
		[]string{"queue"},
	)

	NotificationsPublishFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_publish_failed_total",
			Help: "Total number of notification jobs that could not be published",
		},
		[]string{"queue"},
	)

	NotificationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_processed_total",
			Help: "Total number of deliveries handled by the consumer, by outcome",
		},
		[]string{"template", "outcome"},
	)

	NotificationsDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_dead_lettered_total",
			Help: "Total number of deliveries copied to the dead-letter queue",
		},
	)

	MailSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mail_send_duration_seconds",
			Help:    "Duration of mail provider calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	MailSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_send_total",
			Help: "Total number of mail provider calls, by result",
		},
		[]string{"provider", "result"},
	)

	ConsumerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "consumer_restarts_total",
			Help: "Total number of consumer session restarts",
		},
	)

	ConsumerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "consumer_state",
			Help: "1 for the current consumer supervisor state, 0 otherwise",
		},
		[]string{"state"},
	)

	BrokerConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_connect_attempts_total",
			Help: "Total number of broker dial attempts, by result",
		},
		[]string{"result"},
	)
)

// SetConsumerState marks state as current and clears the others.
func SetConsumerState(current string, all []string) {
	for _, s := range all {
		if s == current {
			ConsumerState.WithLabelValues(s).Set(1)
		} else {
			ConsumerState.WithLabelValues(s).Set(0)
		}
	}
}
