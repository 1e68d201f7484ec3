package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hallbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_decisions_total",
			Help:      "Availability decisions by outcome and rejection reason.",
		},
		[]string{"outcome", "reason"},
	)

	calendarCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_cache_total",
			Help:      "Calendar cache lookups by result.",
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_tasks_total",
			Help:      "Processed notification tasks by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingDecisions, calendarCache, notifications)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveDecision counts an accepted booking (empty reason) or a rejection.
func ObserveDecision(reason string) {
	if reason == "" {
		bookingDecisions.WithLabelValues("accepted", "none").Inc()
		return
	}
	bookingDecisions.WithLabelValues("rejected", reason).Inc()
}

// IncCache counts a calendar cache "hit", "miss" or "error".
func IncCache(result string) {
	calendarCache.WithLabelValues(result).Inc()
}

// IncNotification counts a processed task: "sent", "retry" or "dead".
func IncNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}
