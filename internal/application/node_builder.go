package application

import (
	"context"
	"fmt"

	"github.com/Shugur-Network/aisbridge/internal/ais"
	"github.com/Shugur-Network/aisbridge/internal/config"
	"github.com/Shugur-Network/aisbridge/internal/dispatch"
	"github.com/Shugur-Network/aisbridge/internal/domain"
	"github.com/Shugur-Network/aisbridge/internal/health"
	"github.com/Shugur-Network/aisbridge/internal/limiter"
	"github.com/Shugur-Network/aisbridge/internal/logger"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
	"github.com/Shugur-Network/aisbridge/internal/storage"
	"github.com/Shugur-Network/aisbridge/internal/tracker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NodeBuilder is used to incrementally construct a Node instance.
type NodeBuilder struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	database *storage.DB
	registry domain.CarrierStore
	source   domain.IdentifierSource
	resolver domain.TargetResolver
	sink     domain.PositionSink

	dispatcher  *dispatch.Dispatcher
	manager     *tracker.Manager
	syncer      *tracker.Syncer
	rateLimiter *limiter.RateLimiter
}

// NewNodeBuilder creates a new NodeBuilder with its own cancelable context.
func NewNodeBuilder(ctx context.Context, cfg *config.Config) *NodeBuilder {
	c, cancel := context.WithCancel(ctx)
	return &NodeBuilder{
		ctx:    c,
		cancel: cancel,
		config: cfg,
	}
}

// BuildDB connects the carrier registry and position store. With the database
// disabled the registry is empty and positions are only logged.
func (b *NodeBuilder) BuildDB() error {
	if !b.config.Database.Enabled {
		logger.Warn("Database disabled: carrier registry is empty and positions are logged only")
		b.source = emptyRegistry{}
		b.resolver = emptyRegistry{}
		b.sink = newLogSink(logger.New("sink"))
		return nil
	}

	logger.Info("Connecting to database...",
		zap.String("server", b.config.Database.Server),
		zap.Int("port", b.config.Database.Port),
		zap.Bool("url_provided", b.config.Database.URL != ""))

	db, err := storage.InitDB(b.ctx, b.config.Database)
	if err != nil {
		b.cancel()
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	b.database = db

	if err := db.InitializeSchema(b.ctx); err != nil {
		logger.Error("Failed to initialize database schema", zap.Error(err))
		b.abort()
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if err := db.VerifySchema(b.ctx); err != nil {
		logger.Error("Database schema verification failed", zap.Error(err))
		b.abort()
		return fmt.Errorf("database schema verification failed: %w", err)
	}

	registry := storage.NewCarrierRegistry(db)
	b.registry = registry
	b.source = registry
	b.resolver = registry
	b.sink = storage.NewPositionStore(db)
	return nil
}

// abort releases what BuildDB acquired.
func (b *NodeBuilder) abort() {
	if b.database != nil {
		if err := b.database.Close(); err != nil {
			logger.Warn("Failed to close database connection", zap.Error(err))
		}
	}
	b.cancel()
}

// BuildDispatcher sets up the report worker pool. Identifiers nobody tracks any
// more are handed to the syncer for pruning.
func (b *NodeBuilder) BuildDispatcher() {
	cfg := b.config.Dispatch
	b.dispatcher = dispatch.New(b.resolver, b.sink, dispatch.Options{
		Workers:       cfg.Workers,
		QueueSize:     cfg.QueueSize,
		ShutdownGrace: cfg.ShutdownGrace,
		OnUnresolved: func(identifier string) {
			if b.syncer != nil {
				b.syncer.Prune(identifier)
			}
		},
		Logger: logger.New("dispatch"),
	})
}

// BuildTracker wires the connection manager to the stream client and the syncer
// to the registry.
func (b *NodeBuilder) BuildTracker() {
	sc := b.config.Stream
	onReport := func(r ais.PositionReport) {
		b.dispatcher.Submit(r)
	}

	b.manager = tracker.NewManager(streamDialer(sc, onReport, logger.New("stream")), tracker.Options{
		Configured:     sc.Configured(),
		ConnectTimeout: sc.ConnectTimeout,
		Retry: tracker.RetryPolicy{
			MaxAttempts: sc.MaxRetryAttempts,
			Delay:       sc.RetryDelay,
			MaxDelay:    sc.MaxRetryDelay,
			Multiplier:  sc.RetryMultiplier,
		},
		Logger: logger.New("tracker"),
	})

	tc := b.config.Tracking
	b.syncer = tracker.NewSyncer(b.source, b.manager, tracker.SyncOptions{
		Interval:   tc.SyncInterval,
		Prune:      tc.PruneUnresolved,
		PruneRate:  rate.Limit(tc.PruneRate),
		PruneBurst: tc.PruneBurst,
		Logger:     logger.New("sync"),
	})
}

// BuildRateLimiter sets up per-client throttling for the admin API. A zero rate
// leaves the API unthrottled.
func (b *NodeBuilder) BuildRateLimiter() {
	api := b.config.API
	if api.RateLimit <= 0 {
		return
	}
	b.rateLimiter = limiter.NewRateLimiter(limiter.Limit{
		Rate:         rate.Limit(api.RateLimit),
		Burst:        api.RateBurst,
		BanThreshold: api.BanThreshold,
		BanDuration:  api.BanDuration,
	}, logger.New("limiter"))
}

// Build finalizes the node construction.
func (b *NodeBuilder) Build() (*Node, error) {
	if b.source == nil || b.sink == nil {
		return nil, fmt.Errorf("database must be built before calling Build()")
	}
	if b.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher must be built before calling Build()")
	}
	if b.manager == nil || b.syncer == nil {
		return nil, fmt.Errorf("tracker must be built before calling Build()")
	}

	deps := health.Dependencies{
		Stream:      b.manager,
		Dispatch:    b.dispatcher,
		LastFrameAt: metrics.LastFrameAt,
	}
	if b.database != nil {
		deps.DB = b.database
	}

	node := &Node{
		ctx:        b.ctx,
		cancel:     b.cancel,
		config:     b.config,
		db:         b.database,
		registry:   b.registry,
		dispatcher: b.dispatcher,
		manager:    b.manager,
		syncer:     b.syncer,
		limiter:    b.rateLimiter,
		health:     health.NewHealthChecker(deps, logger.New("node"), config.Version),
		logger:     logger.New("node"),
	}

	logger.Debug("Node initialized successfully via builder")
	return node, nil
}
