package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Presence
var (
	// Connections tracks registered transport connections.
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_connections",
			Help: "Number of transport connections registered to a user",
		},
	)

	// OnlineUsers tracks users with at least one live connection.
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_online_users",
			Help: "Number of users with at least one live connection",
		},
	)

	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_transitions_total",
			Help: "Online/offline transitions by state and cause",
		},
		[]string{"state", "cause"},
	)

	PrunedConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_pruned_connections_total",
			Help: "Connections removed because the transport reported them gone",
		},
		[]string{"cause"},
	)

	SweepEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_sweep_evictions_total",
			Help: "Users removed by the liveness sweeper",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "presence_sweep_duration_seconds",
			Help:    "Time spent reconciling the registry",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)
)

// Delivery
var (
	// Deliveries counts routed payloads by kind and outcome.
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_deliveries_total",
			Help: "Routed deliveries by payload kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	PendingReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_pending_replayed_total",
			Help: "Queued deliveries replayed to a reconnecting user",
		},
	)

	PendingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_pending_errors_total",
			Help: "Pending store failures by operation",
		},
		[]string{"operation"},
	)
)

// Transport
var (
	TransportConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transport_connections",
			Help: "Open Engine.IO sessions, joined or not",
		},
	)

	TransportSlowConsumers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transport_slow_consumers_total",
			Help: "Connections closed because their send buffer filled up",
		},
	)
)

// HTTP
var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Collaborator API requests by route and status",
		},
		[]string{"route", "status"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
	)
)
