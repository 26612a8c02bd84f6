// Package api serves the admin HTTP endpoints for carriers and tracking.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/constants"
	"github.com/Shugur-Network/aisbridge/internal/domain"
	apperrors "github.com/Shugur-Network/aisbridge/internal/errors"
	"github.com/Shugur-Network/aisbridge/internal/limiter"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
	"github.com/Shugur-Network/aisbridge/internal/tracker"
	"github.com/Shugur-Network/aisbridge/internal/workers"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tracker is the connection manager as seen by the API.
type Tracker interface {
	Configured() bool
	Apply(identifiers []string)
	Shutdown()
	Status() tracker.Status
}

// SyncControl lets the operator hold the periodic registry sync while tracking
// is stopped.
type SyncControl interface {
	Pause()
	Resume()
}

// DispatchStats reports worker pool statistics.
type DispatchStats interface {
	Stats() workers.Stats
}

// Dependencies wires the handler. Store may be nil when the database is disabled
// and Limiter nil when throttling is off.
type Dependencies struct {
	Store    domain.CarrierStore
	Tracker  Tracker
	Sync     SyncControl
	Dispatch DispatchStats
	Health   http.HandlerFunc
	Limiter  *limiter.RateLimiter
}

// Handler provides the admin API.
type Handler struct {
	deps      Dependencies
	errors    *apperrors.ErrorMiddleware
	logger    *zap.Logger
	startTime time.Time
}

// NewHandler creates the admin API handler.
func NewHandler(deps Dependencies, logger *zap.Logger) *Handler {
	logger = logger.Named("api")
	return &Handler{
		deps:      deps,
		errors:    apperrors.NewErrorMiddleware(logger),
		logger:    logger,
		startTime: time.Now(),
	}
}

// Routes returns the handler tree with recovery, metrics and security headers.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /api/carriers", h.wrap(h.listCarriers))
	mux.Handle("POST /api/carriers", h.wrap(h.addCarrier))
	mux.Handle("DELETE /api/carriers/{deviceId}", h.wrap(h.removeCarrier))
	mux.Handle("GET /api/tracking", h.wrap(h.trackingStatus))
	mux.Handle("POST /api/tracking/start", h.wrap(h.startTracking))
	mux.Handle("POST /api/tracking/stop", h.wrap(h.stopTracking))
	mux.Handle("GET /api/stats", h.wrap(h.stats))
	if h.deps.Health != nil {
		mux.HandleFunc("/health", h.deps.Health)
	}

	var handler http.Handler = mux
	if h.deps.Limiter != nil {
		handler = RateLimitMiddleware(h.deps.Limiter, h.errors)(handler)
	}
	handler = SecurityMiddleware(APISecurityHeaders())(handler)
	handler = h.errors.RecoveryMiddleware(handler)
	return MetricsMiddleware(handler)
}

func (h *Handler) wrap(fn apperrors.HandlerFunc) http.Handler {
	return apperrors.NewHandler(h.errors, fn)
}

func (h *Handler) store() (domain.CarrierStore, error) {
	if h.deps.Store == nil {
		return nil, apperrors.New(apperrors.ErrorTypeDisabled, "REGISTRY_DISABLED", "carrier registry is disabled").
			WithUserMessage("The carrier registry is disabled.")
	}
	return h.deps.Store, nil
}

func (h *Handler) listCarriers(w http.ResponseWriter, r *http.Request) error {
	store, err := h.store()
	if err != nil {
		return err
	}
	carriers, err := store.ListCarriers(r.Context())
	if err != nil {
		return err
	}
	if carriers == nil {
		carriers = []domain.Carrier{}
	}
	return h.writeJSON(w, http.StatusOK, carriers)
}

func (h *Handler) addCarrier(w http.ResponseWriter, r *http.Request) error {
	store, err := h.store()
	if err != nil {
		return err
	}

	var c domain.Carrier
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.ValidationError("EMPTY_BODY", "request body is required")
		}
		return apperrors.ValidationError("INVALID_JSON", "request body must be a carrier object")
	}

	created, err := store.AddCarrier(r.Context(), c)
	if err != nil {
		return err
	}
	h.logger.Info("Carrier registered",
		zap.Int64("device_id", created.DeviceID),
		zap.String("carrier_id", created.CarrierID))
	return h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) removeCarrier(w http.ResponseWriter, r *http.Request) error {
	store, err := h.store()
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(r.PathValue("deviceId"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.ValidationError("INVALID_DEVICE_ID", "deviceId must be a positive integer")
	}
	if err := store.RemoveCarrier(r.Context(), id); err != nil {
		return err
	}
	h.logger.Info("Carrier removed", zap.Int64("device_id", id))
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) trackingStatus(w http.ResponseWriter, _ *http.Request) error {
	return h.writeJSON(w, http.StatusOK, h.deps.Tracker.Status())
}

// startTracking reads the registry now instead of waiting for the next sync.
func (h *Handler) startTracking(w http.ResponseWriter, r *http.Request) error {
	if !h.deps.Tracker.Configured() {
		return apperrors.StreamDisabledError()
	}
	store, err := h.store()
	if err != nil {
		return err
	}
	ids, err := store.ListDesiredIdentifiers(r.Context())
	if err != nil {
		return apperrors.RegistryError("list identifiers", err)
	}
	h.logger.Info("Tracking start requested", zap.Int("identifiers", len(ids)))
	if h.deps.Sync != nil {
		h.deps.Sync.Resume()
	}
	h.deps.Tracker.Apply(ids)
	return h.writeJSON(w, http.StatusOK, h.deps.Tracker.Status())
}

// stopTracking holds the sync first so the next cycle does not reconnect.
func (h *Handler) stopTracking(w http.ResponseWriter, _ *http.Request) error {
	h.logger.Info("Tracking stop requested")
	if h.deps.Sync != nil {
		h.deps.Sync.Pause()
	}
	h.deps.Tracker.Shutdown()
	return h.writeJSON(w, http.StatusOK, h.deps.Tracker.Status())
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) error {
	resp := map[string]any{
		"uptime_seconds":     int64(time.Since(h.startTime).Seconds()),
		"reports_forwarded":  metrics.GetReportsForwardedCount(),
		"reports_per_second": metrics.GetReportsPerSecond(),
		"records_delivered":  metrics.GetRecordsDeliveredCount(),
		"tracking":           h.deps.Tracker.Status(),
		"timestamp":          time.Now().Unix(),
	}
	if last := metrics.LastFrameAt(); !last.IsZero() {
		resp["last_frame_at"] = last.UTC()
	}
	if h.deps.Dispatch != nil {
		resp["dispatch"] = h.deps.Dispatch.Stats()
	}
	return h.writeJSON(w, http.StatusOK, resp)
}

// writeJSON logs encode failures: the status line is already sent.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
	return nil
}
