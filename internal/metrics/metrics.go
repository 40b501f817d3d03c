package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream metrics
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbridge_frames_received_total",
			Help: "Inbound stream frames by event code",
		},
		[]string{"code"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbridge_frames_dropped_total",
			Help: "Frames dropped by the demultiplexer",
		},
		[]string{"reason"}, // "unknown_code", "parse_error", "bad_payload", "unhandled_callback"
	)

	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbridge_reconnects_total",
			Help: "Stream reconnect attempts admitted past the throttle",
		},
	)

	ReconnectsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbridge_reconnects_throttled_total",
			Help: "Reconnect requests coalesced by the throttle window",
		},
	)

	HeartbeatProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbridge_heartbeat_probes_total",
			Help: "Liveness probe calls issued after stream quiet periods",
		},
		[]string{"result"}, // "ok" or "failed"
	)

	// Call metrics
	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbridge_call_duration_seconds",
			Help:    "Unary backend call duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"api"},
	)

	CallFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbridge_call_failures_total",
			Help: "Unary backend call failures",
		},
		[]string{"api"},
	)

	// Cache metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbridge_cache_lookups_total",
			Help: "Cache store lookups",
		},
		[]string{"kind", "result"}, // kind: contact/room/room_member, result: hit/miss
	)

	// Sync metrics
	SyncJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbridge_sync_jobs_total",
			Help: "Backfill jobs processed by the detail-sync queue",
		},
		[]string{"result"}, // "ok" or "failed"
	)

	CorrelationTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbridge_correlation_timeouts_total",
			Help: "Awaited notifications that never arrived in time",
		},
	)

	// Event metrics
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbridge_events_emitted_total",
			Help: "Domain events emitted to the consumer",
		},
		[]string{"kind"},
	)

	// Ops endpoint metrics
	OpsRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbridge_ops_requests_total",
			Help: "Requests to the operational HTTP endpoints",
		},
		[]string{"method", "path", "status"},
	)

	OpsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbridge_ops_request_duration_seconds",
			Help:    "Operational HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"method", "path"},
	)
)
