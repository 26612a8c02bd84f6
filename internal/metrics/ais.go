package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reportWindow = NewSlidingWindow(60*time.Second, 100000)

var (
	reportsForwardedCount int64
	recordsDeliveredCount int64
	lastFrameTimestamp    int64
)

// Stream metrics
var (
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_stream_frames_received_total",
		Help: "Frames received from the AIS stream by frame kind",
	}, []string{"kind"}) // "text", "binary"

	FrameSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ais_stream_frame_size_bytes",
		Help:    "Size of received frames in bytes",
		Buckets: prometheus.ExponentialBuckets(64, 4, 6),
	})

	ParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ais_stream_parse_errors_total",
		Help: "Frames dropped because they were not valid envelopes",
	})

	NonPositionFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ais_stream_non_position_frames_total",
		Help: "Frames without a position report",
	})

	ReportsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ais_stream_reports_forwarded_total",
		Help: "Position reports handed to the dispatcher",
	})

	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_stream_connect_attempts_total",
		Help: "Connection attempts by result",
	}, []string{"result"}) // "success", "failure"

	ReconnectsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ais_stream_reconnects_scheduled_total",
		Help: "Delayed reconnect attempts scheduled",
	})

	RetriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ais_stream_retries_exhausted_total",
		Help: "Times the connection manager gave up reconnecting",
	})

	SubscriptionUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ais_stream_subscription_updates_total",
		Help: "In-place subscription updates sent on an open connection",
	})

	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ais_stream_connection_state",
		Help: "Connection manager state (0 idle, 1 connecting, 2 open, 3 reconnecting, 4 stopped)",
	})

	TrackedIdentifiers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ais_tracked_identifiers",
		Help: "Identifiers in the current subscription set",
	})
)

// Dispatch metrics
var (
	DispatchQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ais_dispatch_queued_total",
		Help: "Reports accepted by the dispatch queue",
	})

	DispatchDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_dispatch_dropped_total",
		Help: "Reports rejected by the dispatch queue",
	}, []string{"reason"}) // "queue_full", "stopped"

	DispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ais_dispatch_queue_depth",
		Help: "Reports waiting in the dispatch queue",
	})

	RecordsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ais_dispatch_records_delivered_total",
		Help: "Normalized position records delivered downstream",
	})

	UnresolvedIdentifiers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ais_dispatch_unresolved_total",
		Help: "Reports whose identifier resolved to no target",
	})

	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_dispatch_failures_total",
		Help: "Per-report dispatch failures by stage",
	}, []string{"stage"}) // "resolve", "deliver", "panic"

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ais_dispatch_duration_seconds",
		Help:    "Time to resolve and deliver one report",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 7),
	})
)

// Sync metrics
var (
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_sync_runs_total",
		Help: "Subscription sync cycles by result",
	}, []string{"result"}) // "applied", "registry_error", "paused"

	Prunes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_sync_prunes_total",
		Help: "Prune requests for unresolved identifiers by result",
	}, []string{"result"}) // "applied", "throttled", "absent", "skipped"
)

// Database metrics
var (
	DBConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_db_connections_total",
		Help: "Total number of database connections by status",
	}, []string{"status"}) // "success", "failure", "closed"

	DBErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_db_errors_total",
		Help: "Total number of database errors by type",
	}, []string{"error_type"})

	DBOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_db_operations_total",
		Help: "Total number of database operations by type",
	}, []string{"operation"})
)

// HTTP metrics
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_http_requests_total",
		Help: "Admin API requests by status class",
	}, []string{"code"})

	HTTPRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ais_http_request_duration_seconds",
		Help:    "Admin API request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 10, 5),
	})

	APIRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ais_http_rate_limited_total",
		Help: "Admin API requests rejected by the per-client limiter",
	}, []string{"reason"})
)

// IncrementReportsForwarded bumps the prometheus counter and the local counters.
func IncrementReportsForwarded() {
	ReportsForwarded.Inc()
	atomic.AddInt64(&reportsForwardedCount, 1)
	reportWindow.Add(time.Now().Unix())
}

// GetReportsForwardedCount returns reports forwarded since start.
func GetReportsForwardedCount() int64 {
	return atomic.LoadInt64(&reportsForwardedCount)
}

// GetReportsPerSecond returns the forward rate over the last minute.
func GetReportsPerSecond() float64 {
	return reportWindow.Rate()
}

// IncrementRecordsDelivered bumps the delivered counters.
func IncrementRecordsDelivered() {
	RecordsDelivered.Inc()
	atomic.AddInt64(&recordsDeliveredCount, 1)
}

// GetRecordsDeliveredCount returns records delivered since start.
func GetRecordsDeliveredCount() int64 {
	return atomic.LoadInt64(&recordsDeliveredCount)
}

// MarkFrameReceived records the arrival time of the latest frame.
func MarkFrameReceived(kind string, size int) {
	FramesReceived.WithLabelValues(kind).Inc()
	FrameSizeBytes.Observe(float64(size))
	atomic.StoreInt64(&lastFrameTimestamp, time.Now().UnixNano())
}

// LastFrameAt returns when the last frame arrived, zero if none has.
func LastFrameAt() time.Time {
	ns := atomic.LoadInt64(&lastFrameTimestamp)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// RegisterMetrics pre-registers label values so dashboards show zeros.
func RegisterMetrics() {
	for _, kind := range []string{"text", "binary"} {
		FramesReceived.WithLabelValues(kind)
	}
	for _, result := range []string{"success", "failure"} {
		ConnectAttempts.WithLabelValues(result)
	}
	for _, reason := range []string{"queue_full", "stopped"} {
		DispatchDropped.WithLabelValues(reason)
	}
	for _, stage := range []string{"resolve", "deliver", "panic"} {
		DispatchFailures.WithLabelValues(stage)
	}
	for _, result := range []string{"applied", "registry_error", "paused"} {
		SyncRuns.WithLabelValues(result)
	}
	for _, result := range []string{"applied", "throttled", "absent", "skipped"} {
		Prunes.WithLabelValues(result)
	}
	for _, reason := range []string{"throttled", "banned"} {
		APIRateLimited.WithLabelValues(reason)
	}
	for _, status := range []string{"success", "failure", "closed"} {
		DBConnections.WithLabelValues(status)
	}
	for _, errType := range []string{
		"connection_failed", "query_failed", "command_execution_failed", "insert_failed",
	} {
		DBErrors.WithLabelValues(errType)
	}
	for _, op := range []string{"carrier_list", "carrier_add", "carrier_remove", "position_insert", "lookup"} {
		DBOperations.WithLabelValues(op)
	}
}
