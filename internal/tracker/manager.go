// Package tracker keeps a single upstream subscription in line with the set of
// vessels that should be tracked.
package tracker

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/logger"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
	"go.uber.org/zap"
)

// State of the connection manager.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Conn is a live upstream connection.
type Conn interface {
	UpdateSubscription(identifiers []string) error
	Close() error
}

// DialFunc opens a connection subscribed to identifiers. onRemoteClose must be
// called at most once, and only when the peer ends the connection.
type DialFunc func(ctx context.Context, identifiers []string, onRemoteClose func(error)) (Conn, error)

// RetryPolicy bounds reconnect attempts. Attempts are numbered from 1; exactly
// MaxAttempts are made before giving up.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	// Multiplier of 1 (or less) keeps the delay fixed.
	Multiplier float64
}

// DefaultRetryPolicy is three attempts ten seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Second, MaxDelay: 5 * time.Minute, Multiplier: 1}
}

// Backoff returns the wait before the given attempt (2 or later).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.Delay
	if p.Multiplier > 1 && attempt > 2 {
		scaled := float64(p.Delay) * math.Pow(p.Multiplier, float64(attempt-2))
		if scaled > float64(math.MaxInt64) {
			d = time.Duration(math.MaxInt64)
		} else {
			d = time.Duration(scaled)
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Options configure a Manager.
type Options struct {
	// Configured is false when the endpoint or API key is missing; Apply is then a no-op.
	Configured     bool
	ConnectTimeout time.Duration
	Retry          RetryPolicy
	Logger         *zap.Logger
}

// Status is a point-in-time view of the manager.
type Status struct {
	State       string    `json:"state"`
	Configured  bool      `json:"configured"`
	Identifiers []string  `json:"identifiers"`
	Attempt     int       `json:"attempt"`
	LastError   string    `json:"last_error,omitempty"`
	OpenSince   time.Time `json:"open_since,omitempty"`
}

// Manager owns the single upstream connection and its retry state machine.
// All transitions happen under one mutex; dials run with the mutex released.
type Manager struct {
	dial   DialFunc
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	desired    *IdentifierSet
	conn       Conn
	attempt    int
	retry      *time.Timer
	dialCancel context.CancelFunc
	earlyClose error
	lastErr    error
	openSince  time.Time
	// epoch invalidates in-flight dials, pending retries and close callbacks
	// that belong to an earlier transition.
	epoch uint64
}

// NewManager creates an idle manager.
func NewManager(dial DialFunc, opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("tracker")
	}
	return &Manager{
		dial:    dial,
		opts:    opts,
		logger:  opts.Logger,
		state:   StateIdle,
		desired: NewIdentifierSet(),
	}
}

// Configured reports whether Apply can do anything.
func (m *Manager) Configured() bool { return m.opts.Configured }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identifiers returns a sorted copy of the current subscription set.
func (m *Manager) Identifiers() []string {
	return m.desired.Slice()
}

// Status returns a snapshot for the admin API and health checks.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:       m.state.String(),
		Configured:  m.opts.Configured,
		Identifiers: m.desired.Slice(),
		Attempt:     m.attempt,
		OpenSince:   m.openSince,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// Apply reconciles the connection with the desired identifier set. When a new
// connection is needed the first attempt runs on the caller's goroutine, bounded
// by the connect timeout.
func (m *Manager) Apply(identifiers []string) {
	if !m.opts.Configured {
		m.logger.Debug("AIS stream not configured, ignoring subscription change")
		return
	}
	ids := NewIdentifierSet(identifiers...).Slice()

	m.mu.Lock()
	if len(ids) == 0 {
		m.clearLocked()
		m.mu.Unlock()
		return
	}

	switch m.state {
	case StateOpen:
		defer m.mu.Unlock()
		if m.desired.Equal(ids) {
			m.logger.Debug("No changes detected in tracked identifiers")
			return
		}
		m.logger.Info("Tracked identifiers changed, updating subscription",
			zap.Int("previous", m.desired.Len()),
			zap.Int("current", len(ids)))
		m.replaceDesiredLocked(ids)
		metrics.SubscriptionUpdates.Inc()
		if err := m.conn.UpdateSubscription(ids); err != nil {
			// The connection closes itself; its close callback drives the reconnect.
			m.lastErr = err
			m.logger.Error("Failed to update subscription", zap.Error(err))
		}
		return

	case StateConnecting:
		// The in-flight dial reconciles against the new set when it completes.
		m.replaceDesiredLocked(ids)
		m.mu.Unlock()
		return
	}

	m.logger.Info("Starting AIS stream connection", zap.Int("identifiers", len(ids)))
	m.replaceDesiredLocked(ids)
	ctx, epoch, snapshot := m.beginAttemptLocked(1)
	m.mu.Unlock()

	m.connect(ctx, epoch, 1, snapshot)
}

// Shutdown cancels pending retries, closes the connection and clears the set.
// It is idempotent and safe to call from any goroutine.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopRetryLocked()
	m.cancelDialLocked()
	m.epoch++
	m.closeConnLocked()
	m.replaceDesiredLocked(nil)
	if m.state != StateStopped {
		m.logger.Info("AIS stream connection manager stopped")
		m.setStateLocked(StateStopped)
	}
}

// clearLocked handles an empty desired set.
func (m *Manager) clearLocked() {
	m.replaceDesiredLocked(nil)
	switch m.state {
	case StateOpen, StateConnecting, StateReconnecting:
		m.logger.Info("No identifiers to track, closing AIS stream connection")
		m.stopRetryLocked()
		m.cancelDialLocked()
		m.epoch++
		m.closeConnLocked()
		m.setStateLocked(StateIdle)
	}
}

func (m *Manager) beginAttemptLocked(attempt int) (context.Context, uint64, []string) {
	m.stopRetryLocked()
	m.cancelDialLocked()
	m.epoch++
	m.attempt = attempt
	m.earlyClose = nil
	m.setStateLocked(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
	m.dialCancel = cancel
	return ctx, m.epoch, m.desired.Slice()
}

func (m *Manager) connect(ctx context.Context, epoch uint64, attempt int, ids []string) {
	m.logger.Debug("Connecting to AIS stream",
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", m.opts.Retry.MaxAttempts))

	conn, err := m.dial(ctx, ids, func(cause error) { m.onRemoteClose(epoch, cause) })

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		// Superseded by Shutdown, an empty Apply or a newer attempt.
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.cancelDialLocked()

	if err == nil && m.earlyClose != nil {
		err = m.earlyClose
		_ = conn.Close()
	}
	if err != nil {
		metrics.ConnectAttempts.WithLabelValues("failure").Inc()
		m.lastErr = err
		m.logger.Error("Failed to connect to AIS stream",
			zap.Int("attempt", attempt),
			zap.Strings("identifiers", ids),
			zap.Error(err))
		m.scheduleRetryLocked(attempt)
		return
	}

	metrics.ConnectAttempts.WithLabelValues("success").Inc()
	m.conn = conn
	m.lastErr = nil
	m.openSince = time.Now()
	m.setStateLocked(StateOpen)
	m.logger.Info("AIS stream connection open",
		zap.Int("attempt", attempt),
		zap.Int("identifiers", len(ids)))

	if !m.desired.Equal(ids) {
		metrics.SubscriptionUpdates.Inc()
		if err := conn.UpdateSubscription(m.desired.Slice()); err != nil {
			m.lastErr = err
			m.logger.Error("Failed to update subscription after connect", zap.Error(err))
		}
	}
}

func (m *Manager) onRemoteClose(epoch uint64, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		return
	}
	switch m.state {
	case StateConnecting:
		m.earlyClose = cause
	case StateOpen:
		m.conn = nil
		m.lastErr = cause
		m.openSince = time.Time{}
		m.logger.Warn("AIS stream closed by remote, reconnecting",
			zap.Int("attempt", m.attempt),
			zap.Error(cause))
		m.scheduleRetryLocked(m.attempt)
	}
}

// scheduleRetryLocked follows a failure of the given attempt.
func (m *Manager) scheduleRetryLocked(failed int) {
	if failed >= m.opts.Retry.MaxAttempts {
		metrics.RetriesExhausted.Inc()
		m.logger.Error("Max retry attempts reached, giving up on AIS stream",
			zap.Int("max_attempts", m.opts.Retry.MaxAttempts),
			zap.Strings("identifiers", m.desired.Slice()),
			zap.Error(m.lastErr))
		m.epoch++
		m.closeConnLocked()
		m.replaceDesiredLocked(nil)
		m.setStateLocked(StateStopped)
		return
	}

	next := failed + 1
	delay := m.opts.Retry.Backoff(next)
	m.epoch++
	epoch := m.epoch
	m.setStateLocked(StateReconnecting)
	m.retry = time.AfterFunc(delay, func() { m.runRetry(epoch, next) })
	metrics.ReconnectsScheduled.Inc()
	m.logger.Info("Scheduling AIS stream reconnection",
		zap.Int("next_attempt", next),
		zap.Duration("delay", delay))
}

func (m *Manager) runRetry(epoch uint64, attempt int) {
	m.mu.Lock()
	if m.epoch != epoch || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	ctx, e, ids := m.beginAttemptLocked(attempt)
	m.mu.Unlock()

	m.connect(ctx, e, attempt, ids)
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) cancelDialLocked() {
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
}

func (m *Manager) closeConnLocked() {
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Debug("Error closing AIS stream connection", zap.Error(err))
		}
		m.conn = nil
	}
	m.openSince = time.Time{}
}

func (m *Manager) replaceDesiredLocked(ids []string) {
	m.desired.Replace(ids)
	metrics.TrackedIdentifiers.Set(float64(m.desired.Len()))
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	metrics.ConnectionState.Set(float64(s))
}
