package constants

import "time"

// Service identity
const (
	ServiceName = "aisbridge"
	UserAgent   = "aisbridge/1"
)

// Timeouts (seconds unless noted)
const (
	HealthCheckTimeout = 5
	RegistryTimeout    = 30
	APIRequestTimeout  = 15
	ShutdownTimeout    = 10
)

// HTTP server limits
const (
	ReadHeaderTimeout = 5 * time.Second
	MaxRequestBody    = 64 * 1024
)

// Health thresholds
const (
	MemoryWarningMB      = 500
	MemoryCriticalMB     = 1000
	GoroutineWarning     = 1000
	GoroutineCritical    = 5000
	QueueDegradedPercent = 80
	// A subscribed stream that has been silent this long is reported degraded.
	StreamSilenceWarning = 10 * time.Minute
)
