package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "autopublisher"

var (
	ChannelPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_publishes_total",
			Help:      "Channel publish attempts by outcome.",
		},
		[]string{"channel", "status"}, // status: "success", "error"
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_publish_duration_seconds",
			Help:      "Duration of platform publish calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Publishes refused locally by the rate limiter.",
		},
		[]string{"platform", "window"},
	)

	RetriesEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_enqueued_total",
			Help:      "Failures queued for retry.",
		},
		[]string{"channel", "code"},
	)

	RetryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_outcomes_total",
			Help:      "Retry executions by outcome.",
		},
		[]string{"outcome"},
	)

	PermanentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permanent_failures_total",
			Help:      "Failures that will not be retried.",
		},
		[]string{"channel", "code"},
	)

	JobsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_jobs_fired_total",
			Help:      "Publish jobs claimed and run, by trigger source.",
		},
		[]string{"source"}, // "sweep", "queue", "manual"
	)

	FrequencyAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frequency_alerts_total",
			Help:      "Frequency alerts raised by status.",
		},
		[]string{"status"},
	)

	QuotaUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "platform_quota_usage_percent",
			Help:      "Last platform-reported quota usage.",
		},
		[]string{"platform", "metric"},
	)
)
