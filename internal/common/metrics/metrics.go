// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ApplicationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applications_created_total",
			Help: "Total number of applications created",
		},
		[]string{"result"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "application_status_transitions_total",
			Help: "Application status transition attempts by outcome",
		},
		[]string{"from", "to", "result"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Lifecycle events handed to the event channel",
		},
		[]string{"type", "driver", "result"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Lifecycle events processed by the notification consumer",
		},
		[]string{"type", "result"},
	)

	EventsDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dead_lettered_total",
			Help: "Lifecycle events moved to the dead-letter stream",
		},
		[]string{"reason"},
	)

	EventProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_processing_duration_seconds",
			Help:    "Duration of lifecycle event processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	ConsumerWorkersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_consumer_workers_active",
			Help: "Number of consumer workers currently processing an event",
		},
		[]string{"stream"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications materialized from events, by whether the event was a duplicate",
		},
		[]string{"type", "duplicate"},
	)

	NotificationsMarkedRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_marked_read_total",
			Help: "Mark-as-read operations",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Redis cache-aside lookups by cache and outcome",
		},
		[]string{"cache", "result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
