package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	NotificationsReceived prometheus.Counter
	NotificationsIgnored  *prometheus.CounterVec
	ForwardSuccesses      prometheus.Counter
	ForwardFailures       prometheus.Counter
	DeliveryAttempts      prometheus.Counter
	DeliveryDuration      prometheus.Histogram
	HistorySize           prometheus.Gauge
	PipelineUp            prometheus.Gauge
	PipelineRestarts      prometheus.Counter
	SupervisorChecks      prometheus.Counter
}

// NewMetrics creates the relay metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NotificationsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "notify_mail_relay_notifications_received_total",
			Help: "Total number of notifications received from the host",
		}),
		NotificationsIgnored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_mail_relay_notifications_ignored_total",
			Help: "Total number of notifications rejected by the filter",
		}, []string{"reason"}),
		ForwardSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "notify_mail_relay_forward_successes_total",
			Help: "Total number of notifications forwarded by email",
		}),
		ForwardFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "notify_mail_relay_forward_failures_total",
			Help: "Total number of notifications that failed after all attempts",
		}),
		DeliveryAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "notify_mail_relay_delivery_attempts_total",
			Help: "Total number of SMTP send attempts",
		}),
		DeliveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notify_mail_relay_delivery_duration_seconds",
			Help:    "Time spent delivering one record, retries included",
			Buckets: prometheus.DefBuckets,
		}),
		HistorySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notify_mail_relay_history_size",
			Help: "Number of records currently kept in history",
		}),
		PipelineUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notify_mail_relay_pipeline_up",
			Help: "Whether the forwarding pipeline is running",
		}),
		PipelineRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "notify_mail_relay_pipeline_restarts_total",
			Help: "Total number of pipeline restarts triggered by recovery",
		}),
		SupervisorChecks: factory.NewCounter(prometheus.CounterOpts{
			Name: "notify_mail_relay_supervisor_checks_total",
			Help: "Total number of supervisor liveness checks",
		}),
	}
}
