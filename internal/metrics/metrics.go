package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Broadcast fan-out
	BroadcastsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_broadcasts_delivered_total",
			Help: "Events delivered to connected sessions",
		},
		[]string{"event"},
	)
	BroadcastsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_broadcasts_dropped_total",
			Help: "Events dropped because a session buffer was full",
		},
		[]string{"event"},
	)
	ConnectedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connected_sessions",
			Help: "Currently connected push sessions",
		},
	)

	// Notification dispatch
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notification records created",
		},
		[]string{"type"},
	)
	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notification records that could not be created",
		},
	)

	// Outbox drain
	OutboxDrained = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_drained_total",
			Help: "Outbox events processed by result",
		},
		[]string{"result"},
	)
	OutboxDrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_drain_duration_seconds",
			Help:    "Duration of one outbox drain pass",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)
