package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/constants"
	"github.com/Shugur-Network/aisbridge/internal/storage"
	"github.com/Shugur-Network/aisbridge/internal/tracker"
	"github.com/Shugur-Network/aisbridge/internal/workers"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HealthStatus represents the overall health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the status of a specific component
type ComponentStatus struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus       `json:"status"`
	Ready      bool               `json:"ready"`
	Timestamp  time.Time          `json:"timestamp"`
	Version    string             `json:"version"`
	Uptime     string             `json:"uptime"`
	Components []*ComponentStatus `json:"components"`
	Summary    map[string]any     `json:"summary"`
}

// Database is the part of storage.DB needed for health checks.
type Database interface {
	Ping(ctx context.Context) error
	Stats() storage.DatabaseStats
}

// Stream reports the connection manager's state.
type Stream interface {
	Status() tracker.Status
}

// Queue reports dispatch pool statistics.
type Queue interface {
	Stats() workers.Stats
}

// Dependencies lists what the checker inspects. Nil members are reported as disabled.
type Dependencies struct {
	DB          Database
	Stream      Stream
	Dispatch    Queue
	LastFrameAt func() time.Time
}

// HealthChecker performs comprehensive health checks
type HealthChecker struct {
	deps      Dependencies
	logger    *zap.Logger
	startTime time.Time
	version   string
	now       func() time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(deps Dependencies, logger *zap.Logger, version string) *HealthChecker {
	if deps.LastFrameAt == nil {
		deps.LastFrameAt = func() time.Time { return time.Time{} }
	}
	return &HealthChecker{
		deps:      deps,
		logger:    logger.Named("health"),
		startTime: time.Now(),
		version:   version,
		now:       time.Now,
	}
}

// CheckHealth performs a comprehensive health check
func (h *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	started := h.now()
	components := []*ComponentStatus{
		h.checkDatabase(ctx),
		h.checkStream(),
		h.checkDispatch(),
		h.checkMemory(),
		h.checkSystemResources(),
	}

	overall := determineOverallStatus(components)
	return &HealthResponse{
		Status:     overall,
		Ready:      overall != StatusUnhealthy && h.streamReady(),
		Timestamp:  h.now(),
		Version:    h.version,
		Uptime:     formatUptime(h.now().Sub(h.startTime)),
		Components: components,
		Summary: map[string]any{
			"total_components":     len(components),
			"healthy_components":   countComponentsByStatus(components, StatusHealthy),
			"degraded_components":  countComponentsByStatus(components, StatusDegraded),
			"unhealthy_components": countComponentsByStatus(components, StatusUnhealthy),
			"check_duration_ms":    h.now().Sub(started).Milliseconds(),
		},
	}
}

func (h *HealthChecker) checkDatabase(ctx context.Context) *ComponentStatus {
	status := &ComponentStatus{Name: "database", Details: make(map[string]any)}
	if h.deps.DB == nil {
		status.Status = StatusHealthy
		status.Message = "Database disabled"
		return status
	}

	if err := h.deps.DB.Ping(ctx); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "Database connection failed"
		status.Details["error"] = err.Error()
		return status
	}

	stats := h.deps.DB.Stats()
	status.Details["open_connections"] = stats.OpenConnections
	status.Details["in_use"] = stats.InUse
	status.Details["idle"] = stats.Idle
	status.Details["max_open_connections"] = stats.MaxOpenConnections

	utilization := percent(stats.InUse, stats.MaxOpenConnections)
	status.Details["connection_utilization_percent"] = utilization

	switch {
	case utilization > 95:
		status.Status = StatusUnhealthy
		status.Message = "Critical database connection utilization"
	case utilization > 90:
		status.Status = StatusDegraded
		status.Message = "High database connection utilization"
	default:
		status.Status = StatusHealthy
		status.Message = "Database is healthy"
	}
	return status
}

// checkStream never reports unhealthy: a stopped or reconnecting stream is
// recoverable by the next sync.
func (h *HealthChecker) checkStream() *ComponentStatus {
	status := &ComponentStatus{Name: "stream", Details: make(map[string]any)}
	if h.deps.Stream == nil {
		status.Status = StatusHealthy
		status.Message = "AIS stream not wired"
		return status
	}

	st := h.deps.Stream.Status()
	status.Details["state"] = st.State
	status.Details["configured"] = st.Configured
	status.Details["tracked_identifiers"] = len(st.Identifiers)
	status.Details["attempt"] = st.Attempt
	if st.LastError != "" {
		status.Details["last_error"] = st.LastError
	}

	last := h.deps.LastFrameAt()
	if !last.IsZero() {
		status.Details["last_frame_age_seconds"] = int64(h.now().Sub(last).Seconds())
	}

	switch {
	case !st.Configured:
		status.Status = StatusHealthy
		status.Message = "AIS stream disabled (no URL or API key)"
	case st.State == tracker.StateOpen.String():
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("Streaming %d identifiers", len(st.Identifiers))
		if !last.IsZero() && h.now().Sub(last) > constants.StreamSilenceWarning {
			status.Status = StatusDegraded
			status.Message = "No frames received recently"
		}
	case st.State == tracker.StateIdle.String():
		status.Status = StatusHealthy
		status.Message = "No identifiers to track"
	case st.State == tracker.StateStopped.String():
		status.Status = StatusDegraded
		status.Message = "AIS stream stopped"
	default:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("AIS stream %s", st.State)
	}
	return status
}

func (h *HealthChecker) streamReady() bool {
	if h.deps.Stream == nil {
		return true
	}
	st := h.deps.Stream.Status()
	if !st.Configured {
		return true
	}
	return st.State == tracker.StateOpen.String() || st.State == tracker.StateIdle.String()
}

func (h *HealthChecker) checkDispatch() *ComponentStatus {
	status := &ComponentStatus{Name: "dispatch", Details: make(map[string]any)}
	if h.deps.Dispatch == nil {
		status.Status = StatusHealthy
		status.Message = "Dispatcher not wired"
		return status
	}

	stats := h.deps.Dispatch.Stats()
	status.Details["workers"] = stats.Workers
	status.Details["queue_depth"] = stats.QueueDepth
	status.Details["queue_size"] = stats.QueueSize
	status.Details["processed"] = stats.Processed
	status.Details["failed"] = stats.Failed
	status.Details["dropped"] = stats.Dropped

	fill := percent(stats.QueueDepth, stats.QueueSize)
	status.Details["queue_utilization_percent"] = fill
	switch {
	case stats.QueueSize > 0 && stats.QueueDepth >= stats.QueueSize:
		status.Status = StatusUnhealthy
		status.Message = "Dispatch queue full"
	case fill > constants.QueueDegradedPercent:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Dispatch queue at %.0f%%", fill)
	default:
		status.Status = StatusHealthy
		status.Message = "Dispatch queue normal"
	}
	return status
}

func (h *HealthChecker) checkMemory() *ComponentStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := &ComponentStatus{Name: "memory", Details: make(map[string]any)}
	allocMB := float64(m.Alloc) / 1024 / 1024
	status.Details["alloc_mb"] = allocMB
	status.Details["sys_mb"] = float64(m.Sys) / 1024 / 1024
	status.Details["heap_mb"] = float64(m.HeapAlloc) / 1024 / 1024
	status.Details["num_gc"] = m.NumGC

	switch {
	case allocMB > constants.MemoryCriticalMB:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("High memory usage: %.1f MB", allocMB)
	case allocMB > constants.MemoryWarningMB:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Elevated memory usage: %.1f MB", allocMB)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("Memory usage normal: %.1f MB", allocMB)
	}
	return status
}

func (h *HealthChecker) checkSystemResources() *ComponentStatus {
	goroutines := runtime.NumGoroutine()
	status := &ComponentStatus{
		Name: "system",
		Details: map[string]any{
			"goroutines": goroutines,
			"cpus":       runtime.NumCPU(),
		},
	}

	switch {
	case goroutines > constants.GoroutineCritical:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("High goroutine count: %d", goroutines)
	case goroutines > constants.GoroutineWarning:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Elevated goroutine count: %d", goroutines)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("System resources normal: %d goroutines", goroutines)
	}
	return status
}

func determineOverallStatus(components []*ComponentStatus) HealthStatus {
	overall := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

func countComponentsByStatus(components []*ComponentStatus, status HealthStatus) int {
	count := 0
	for _, comp := range components {
		if comp.Status == status {
			count++
		}
	}
	return count
}

func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// formatUptime formats uptime duration as a human-readable string
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// HandleHealth serves /health. With ?ready=1 it answers 503 unless the
// service is ready to stream; otherwise only an unhealthy service gets 503.
func (h *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.HealthCheckTimeout*time.Second)
	defer cancel()

	resp := h.CheckHealth(ctx)
	statusCode := http.StatusOK
	if r.URL.Query().Get("ready") == "1" {
		if !resp.Ready {
			statusCode = http.StatusServiceUnavailable
		}
	} else if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
		return
	}

	h.logger.Debug("Health check completed",
		zap.String("status", string(resp.Status)),
		zap.Int("status_code", statusCode),
		zap.String("client_ip", r.RemoteAddr))
}
