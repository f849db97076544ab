package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_client", Name: "channel_messages_total", Help: "Push messages received per topic"},
		[]string{"topic"},
	)
	MessagesInvalid = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_client", Name: "channel_messages_invalid_total", Help: "Push messages rejected at the channel boundary"})
	Reconnects      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_client", Name: "channel_reconnects_total", Help: "Channel reconnect attempts"})
	PublishDropped  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_client", Name: "channel_publish_dropped_total", Help: "Publishes dropped while disconnected"})

	RouteFallbacks     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_client", Name: "route_fallbacks_total", Help: "Route lookups degraded to a straight line"})
	LocationsPublished = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_client", Name: "locations_published_total", Help: "Location samples published"})
	LocationErrors     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_client", Name: "location_errors_total", Help: "Position samples that failed"})

	CommandsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_client", Name: "commands_failed_total", Help: "Backend commands that returned an error"},
		[]string{"op"},
	)
	RequestsSuperseded = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_client", Name: "requests_superseded_total", Help: "Pending ride requests replaced by a newer offer"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_client", Name: "http_requests_total", Help: "Status API requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_client",
			Name:      "http_request_duration_seconds",
			Help:      "Status API latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
