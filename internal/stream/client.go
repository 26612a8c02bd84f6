// Package stream owns the physical WebSocket connection to the AIS provider.
package stream

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/Shugur-Network/aisbridge/internal/ais"
	"github.com/Shugur-Network/aisbridge/internal/constants"
	apperrors "github.com/Shugur-Network/aisbridge/internal/errors"
	"github.com/Shugur-Network/aisbridge/internal/logger"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrClientClosed is returned when writing to a client that has been closed.
	ErrClientClosed = errors.New("stream: client closed")
	// ErrNotConfigured is returned when the endpoint or API key is missing.
	ErrNotConfigured = errors.New("stream: endpoint or API key not configured")
)

// Config describes the upstream endpoint and connection timings.
type Config struct {
	URL            string
	APIKey         string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadLimit      int64
}

func (c *Config) withDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
}

// Handlers receive events from the read loop. OnRemoteClose fires at most once
// and only for closes that were not initiated through Close.
type Handlers struct {
	OnReport      func(ais.PositionReport)
	OnRemoteClose func(error)
}

// Client is bound to a single connection. It is not reusable after close.
type Client struct {
	id       string
	cfg      Config
	ws       *websocket.Conn
	handlers Handlers
	logger   *zap.Logger

	writeMu     sync.Mutex
	closeOnce   sync.Once
	remoteOnce  sync.Once
	closed      atomic.Bool
	localClose  atomic.Bool
	done        chan struct{}
	connectedAt time.Time
}

// Dial connects, sends the initial subscription for identifiers and starts the
// read and keepalive loops. A failed subscription send closes the connection and
// is reported as a dial error.
func Dial(ctx context.Context, cfg Config, identifiers []string, h Handlers, log *zap.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	cfg.withDefaults()

	id := uuid.NewString()
	ctx = logger.WithConnID(ctx, id)
	log = logger.FromContext(ctx, logger.OrNop(log))

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.ConnectTimeout,
	}
	ws, resp, err := dialer.DialContext(dialCtx, cfg.URL, http.Header{"User-Agent": {constants.UserAgent}})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) {
			return nil, apperrors.WebSocketError("dial", err)
		}
		return nil, apperrors.NetworkError("dial", err)
	}

	c := &Client{
		id:          id,
		cfg:         cfg,
		ws:          ws,
		handlers:    h,
		logger:      log,
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
	ws.SetReadLimit(cfg.ReadLimit)

	if err := c.sendSubscription(identifiers); err != nil {
		c.logger.Error("Failed to send subscription, closing connection", zap.Error(err))
		_ = c.Close()
		return nil, err
	}

	c.installKeepalive()
	go c.readLoop()
	go c.pingLoop()

	c.logger.Info("Connected to AIS stream",
		zap.String("url", cfg.URL),
		zap.Int("identifiers", len(identifiers)))
	return c, nil
}

// ID returns the connection id used in logs.
func (c *Client) ID() string { return c.id }

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// IsOpen reports whether the connection has not been closed by either side.
func (c *Client) IsOpen() bool { return !c.closed.Load() }

// UpdateSubscription replaces the server-side filter with the full identifier set.
func (c *Client) UpdateSubscription(identifiers []string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.sendSubscription(identifiers); err != nil {
		c.logger.Error("Failed to update subscription, closing connection", zap.Error(err))
		// Treat like a peer failure so the manager reconnects.
		c.closed.Store(true)
		_ = c.ws.Close()
		return err
	}
	c.logger.Debug("Subscription updated", zap.Int("identifiers", len(identifiers)))
	return nil
}

// Close performs a local close. OnRemoteClose is not invoked. Safe to call more
// than once and from any goroutine; it does not wait for the read loop.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.localClose.Store(true)
		wasOpen := !c.closed.Swap(true)

		if wasOpen {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			c.writeMu.Lock()
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			c.writeMu.Unlock()
		}
		err = c.ws.Close()
		c.logger.Debug("Stream connection closed locally",
			zap.Duration("connection_duration", time.Since(c.connectedAt)))
	})
	return err
}

func (c *Client) sendSubscription(identifiers []string) error {
	frame, err := ais.NewSubscription(c.cfg.APIKey, identifiers).Encode()
	if err != nil {
		return apperrors.InternalError("encode subscription", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	defer func() { _ = c.ws.SetWriteDeadline(time.Time{}) }()
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return apperrors.WebSocketError("subscribe", err)
	}
	return nil
}

func (c *Client) readDeadline() time.Time {
	return time.Now().Add(2 * c.cfg.PingInterval)
}

func (c *Client) installKeepalive() {
	_ = c.ws.SetReadDeadline(c.readDeadline())
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(c.readDeadline())
	})
	c.ws.SetPingHandler(func(appData string) error {
		_ = c.ws.SetReadDeadline(c.readDeadline())
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err := c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.closed.Load() {
				return
			}
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil && !c.localClose.Load() {
				c.logger.Debug("Keepalive ping failed", zap.Error(err))
			}
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		_ = c.ws.SetReadDeadline(c.readDeadline())

		switch msgType {
		case websocket.TextMessage:
			metrics.MarkFrameReceived("text", len(data))
		case websocket.BinaryMessage:
			metrics.MarkFrameReceived("binary", len(data))
			if !utf8.Valid(data) {
				c.logger.Debug("Replacing invalid UTF-8 in binary frame", zap.Int("size", len(data)))
				data = bytes.ToValidUTF8(data, []byte(string(utf8.RuneError)))
			}
		default:
			continue
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	report, err := ais.Parse(data)
	switch {
	case err == nil:
		metrics.IncrementReportsForwarded()
		if c.handlers.OnReport != nil {
			c.handlers.OnReport(report)
		}
	case errors.Is(err, ais.ErrNotAPosition):
		metrics.NonPositionFrames.Inc()
		c.logger.Debug("Ignoring non-position frame")
	default:
		metrics.ParseErrors.Inc()
		c.logger.Warn("Dropping malformed frame", zap.Error(err), zap.Int("size", len(data)))
	}
}

func (c *Client) handleReadError(err error) {
	wasOpen := !c.closed.Swap(true)
	if c.localClose.Load() {
		return
	}
	_ = c.ws.Close()

	wsErr := apperrors.WebSocketError("read", err)
	c.logger.Warn("Stream connection closed by remote",
		zap.String("error_code", wsErr.Code),
		zap.Bool("was_open", wasOpen),
		zap.Duration("connection_duration", time.Since(c.connectedAt)),
		zap.Error(err))

	c.remoteOnce.Do(func() {
		if c.handlers.OnRemoteClose != nil {
			c.handlers.OnRemoteClose(wsErr)
		}
	})
}
