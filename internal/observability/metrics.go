// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring parley-gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// EngineBuckets defines histogram buckets suited for conversational engine
// latencies, ranging from 100ms to 120s.
var EngineBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, route, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_request_duration_seconds",
			Help:    "Request duration",
			Buckets: EngineBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// SessionsActive tracks the number of live sessions in the store.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_sessions_active",
			Help: "Active sessions",
		},
	)

	// EngineTimeoutsTotal counts requests abandoned at their deadline.
	EngineTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_engine_timeouts_total",
			Help: "Engine request timeouts",
		},
	)

	// EngineUnitsTotal counts output units delivered from the engine by kind.
	EngineUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_engine_units_total",
			Help: "Engine output units",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		SessionsActive,
		EngineTimeoutsTotal,
		EngineUnitsTotal,
	)
}
