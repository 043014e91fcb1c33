package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	heatmapDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "heatmap_compute_duration_seconds",
			Help:      "Time spent aggregating responses into a heat map.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		},
		[]string{"scheme"},
	)

	heatmapCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heatmap_cache_total",
			Help:      "Heat-map cache lookups by result.",
		},
		[]string{"result"},
	)

	responsesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_submitted_total",
			Help:      "Responses stored, by event mode.",
		},
		[]string{"mode"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Plugin notifications by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)

	remindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminder notifications published for events with missing invitees.",
		},
	)
)

// ObserveHeatmap records how long a heat-map computation took.
func ObserveHeatmap(scheme string, d time.Duration) {
	heatmapDuration.WithLabelValues(scheme).Observe(d.Seconds())
}

// CacheHit records a heat-map cache hit or miss.
func CacheHit(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	heatmapCache.WithLabelValues(result).Inc()
}

// ResponseSubmitted counts a stored response.
func ResponseSubmitted(mode string) {
	responsesSubmitted.WithLabelValues(mode).Inc()
}

// Notification counts a plugin delivery; outcome is "ok", "error" or "breaker_open".
func Notification(topic, outcome string) {
	notifications.WithLabelValues(topic, outcome).Inc()
}

// ReminderSent counts a published reminder.
func ReminderSent() {
	remindersSent.Inc()
}
