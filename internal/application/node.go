package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/api"
	"github.com/Shugur-Network/aisbridge/internal/config"
	"github.com/Shugur-Network/aisbridge/internal/constants"
	"github.com/Shugur-Network/aisbridge/internal/dispatch"
	"github.com/Shugur-Network/aisbridge/internal/domain"
	"github.com/Shugur-Network/aisbridge/internal/health"
	"github.com/Shugur-Network/aisbridge/internal/limiter"
	"github.com/Shugur-Network/aisbridge/internal/storage"
	"github.com/Shugur-Network/aisbridge/internal/tracker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	limiterCleanupInterval = time.Hour
	limiterIdleTTL         = 24 * time.Hour
)

// Node ties together the components of the AIS bridge: the registry, the
// stream connection manager, the syncer and the dispatcher.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc

	config     *config.Config
	db         *storage.DB
	registry   domain.CarrierStore
	dispatcher *dispatch.Dispatcher
	manager    *tracker.Manager
	syncer     *tracker.Syncer
	limiter    *limiter.RateLimiter
	health     *health.HealthChecker
	logger     *zap.Logger

	mu       sync.Mutex
	servers  []*http.Server
	apiAddr  net.Addr
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates and configures a Node using the NodeBuilder pattern.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	builder := NewNodeBuilder(ctx, cfg)

	if err := builder.BuildDB(); err != nil {
		return nil, fmt.Errorf("failed building db: %w", err)
	}
	builder.BuildDispatcher()
	builder.BuildTracker()
	builder.BuildRateLimiter()

	node, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build node: %w", err)
	}
	return node, nil
}

// Start launches the dispatcher, the HTTP listeners and the subscription sync.
// Listener errors are returned before anything runs in the background.
func (n *Node) Start(ctx context.Context) error {
	// Queued reports must drain on shutdown even after the node context is gone.
	if err := n.dispatcher.Start(context.WithoutCancel(n.ctx)); err != nil {
		n.logger.Error("Failed to start dispatcher", zap.Error(err))
		return err
	}

	if n.config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", n.health.HandleHealth)
		addr := fmt.Sprintf(":%d", n.config.Metrics.Port)
		if _, err := n.serve("metrics", addr, mux); err != nil {
			return err
		}
	}

	if n.config.API.Enabled {
		h := api.NewHandler(api.Dependencies{
			Store:    n.registry,
			Tracker:  n.manager,
			Sync:     n.syncer,
			Dispatch: n.dispatcher,
			Health:   n.health.HandleHealth,
			Limiter:  n.limiter,
		}, n.logger)
		bound, err := n.serve("api", n.config.API.Addr, h.Routes())
		if err != nil {
			return err
		}
		n.mu.Lock()
		n.apiAddr = bound
		n.mu.Unlock()

		if n.limiter != nil {
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				n.limiter.RunCleanup(n.ctx, limiterCleanupInterval, limiterIdleTTL)
			}()
		}
	}

	if !n.manager.Configured() {
		n.logger.Info("AIS stream not configured, ingestion disabled")
		return nil
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.syncer.Run(n.ctx)
	}()

	n.logger.Debug("Node started",
		zap.Bool("metrics", n.config.Metrics.Enabled),
		zap.Bool("api", n.config.API.Enabled),
		zap.Bool("database", n.db != nil))
	return nil
}

// serve binds addr synchronously and serves handler in the background.
func (n *Node) serve(name, addr string, handler http.Handler) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		n.logger.Error("Failed to bind listener", zap.String("server", name), zap.String("addr", addr), zap.Error(err))
		return nil, fmt.Errorf("listen %s on %s: %w", name, addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
	}
	n.mu.Lock()
	n.servers = append(n.servers, srv)
	n.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("Server error", zap.String("server", name), zap.Error(err))
		}
	}()

	n.logger.Info("HTTP server listening", zap.String("server", name), zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// APIAddr returns the bound admin API address, or nil when the API is disabled.
func (n *Node) APIAddr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.apiAddr
}

// Shutdown stops the node in dependency order: sync, stream, dispatch, HTTP, database.
// It is safe to call more than once.
func (n *Node) Shutdown() {
	n.stopOnce.Do(n.shutdown)
}

func (n *Node) shutdown() {
	n.logger.Info("Initiating graceful shutdown...")
	shutdownTimeout := constants.ShutdownTimeout * time.Second

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErrors []error

	// Step 1: Hold the syncer, then close the upstream connection. Shutting the
	// manager down first aborts a dial the sync goroutine may be blocked in.
	n.syncer.Pause()
	n.cancel()
	n.manager.Shutdown()
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.wg.Wait()
	}()
	select {
	case <-done:
		n.logger.Debug("Subscription sync stopped")
	case <-shutdownCtx.Done():
		shutdownErrors = append(shutdownErrors, fmt.Errorf("sync shutdown timed out after %v", shutdownTimeout))
	}

	// Step 2: Close anything a sync cycle opened while step 1 ran
	n.manager.Shutdown()
	n.logger.Debug("Stream connection manager stopped")

	// Step 3: Drain queued reports
	if err := n.dispatcher.Stop(); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("dispatcher: %w", err))
	} else {
		n.logger.Debug("Dispatcher drained")
	}

	// Step 4: HTTP servers
	n.mu.Lock()
	servers := n.servers
	n.servers = nil
	n.mu.Unlock()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server: %w", err))
		}
	}

	// Step 5: Database
	if n.db != nil {
		if err := n.shutdownDatabase(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, err)
		} else {
			n.logger.Debug("Database connection closed")
		}
	}

	if len(shutdownErrors) > 0 {
		n.logger.Warn("Node shutdown completed with errors",
			zap.Int("error_count", len(shutdownErrors)),
			zap.Errors("errors", shutdownErrors),
			zap.Duration("shutdown_timeout", shutdownTimeout))
		return
	}
	n.logger.Info("Node shutdown completed successfully",
		zap.Duration("shutdown_timeout", shutdownTimeout))
}

// shutdownDatabase closes the pool, giving up when ctx expires.
func (n *Node) shutdownDatabase(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- n.db.Close() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("close database: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("database shutdown timed out: %w", ctx.Err())
	}
}
