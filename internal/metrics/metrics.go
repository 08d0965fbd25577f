package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// singleton instance
	instance *Metrics
	once     sync.Once
)

// Metrics holds Prometheus metrics for the patient realtime core
type Metrics struct {
	// Connection client metrics
	EventsDispatchedTotal *prometheus.CounterVec
	HandlerErrorsTotal    *prometheus.CounterVec
	EmitsDroppedTotal     prometheus.Counter
	ReconnectAttempts     prometheus.Counter
	ConnectionState       prometheus.Gauge
	ListenersActive       prometheus.Gauge

	// Notification metrics
	NotificationsCreatedTotal *prometheus.CounterVec
	NotificationsDedupedTotal prometheus.Counter
	UnreadNotifications       prometheus.Gauge

	// Refresh scheduler metrics
	RefreshInvocationsTotal *prometheus.CounterVec
	RefreshErrorsTotal      prometheus.Counter
}

// GetMetrics returns the metrics singleton
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics initializes and registers all metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	m.EventsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patientrt_events_dispatched_total",
			Help: "Total number of events dispatched to local handlers",
		},
		[]string{"event"},
	)

	m.HandlerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patientrt_handler_errors_total",
			Help: "Total number of handler panics recovered during dispatch",
		},
		[]string{"event"},
	)

	m.EmitsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patientrt_emits_dropped_total",
			Help: "Total number of emits dropped because the client was disconnected",
		},
	)

	m.ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patientrt_reconnect_attempts_total",
			Help: "Total number of automatic reconnection attempts",
		},
	)

	m.ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "patientrt_connection_state",
			Help: "Current connection state (0=disconnected, 1=connecting, 2=connected)",
		},
	)

	m.ListenersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "patientrt_listeners_active",
			Help: "Number of handlers currently registered on the connection client",
		},
	)

	m.NotificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patientrt_notifications_created_total",
			Help: "Total number of notification records created",
		},
		[]string{"event"},
	)

	m.NotificationsDedupedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patientrt_notifications_deduped_total",
			Help: "Total number of redelivered events dropped by the dedupe cache",
		},
	)

	m.UnreadNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "patientrt_unread_notifications",
			Help: "Current number of unread notification records",
		},
	)

	m.RefreshInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patientrt_refresh_invocations_total",
			Help: "Total number of refresh invocations by trigger type",
		},
		[]string{"trigger"}, // event, interval
	)

	m.RefreshErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patientrt_refresh_errors_total",
			Help: "Total number of errors returned or recovered from refresh functions",
		},
	)

	return m
}
