package tracker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/constants"
	"github.com/Shugur-Network/aisbridge/internal/domain"
	apperrors "github.com/Shugur-Network/aisbridge/internal/errors"
	"github.com/Shugur-Network/aisbridge/internal/logger"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const registryTimeout = constants.RegistryTimeout * time.Second

// Applier is the part of Manager the syncer drives.
type Applier interface {
	Apply(identifiers []string)
	Identifiers() []string
	State() State
}

// SyncOptions configure a Syncer.
type SyncOptions struct {
	Interval time.Duration
	// Prune enables removing unresolved identifiers between sync cycles.
	Prune      bool
	PruneRate  rate.Limit
	PruneBurst int
	Logger     *zap.Logger
}

// Syncer periodically copies the registry's identifier set into the manager.
type Syncer struct {
	source  domain.IdentifierSource
	manager Applier
	opts    SyncOptions
	limiter *rate.Limiter
	logger  *zap.Logger
	paused  atomic.Bool
}

// NewSyncer creates a syncer. Run starts it.
func NewSyncer(source domain.IdentifierSource, manager Applier, opts SyncOptions) *Syncer {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.PruneRate <= 0 {
		opts.PruneRate = rate.Every(5 * time.Second)
	}
	if opts.PruneBurst <= 0 {
		opts.PruneBurst = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("sync")
	}
	return &Syncer{
		source:  source,
		manager: manager,
		opts:    opts,
		limiter: rate.NewLimiter(opts.PruneRate, opts.PruneBurst),
		logger:  opts.Logger,
	}
}

// Run syncs once immediately and then every interval until ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	s.logger.Info("Subscription sync started", zap.Duration("interval", s.opts.Interval))
	_ = s.SyncOnce(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Subscription sync stopped")
			return
		case <-ticker.C:
			_ = s.SyncOnce(ctx)
		}
	}
}

// Pause keeps sync cycles and prunes from touching the manager until Resume.
func (s *Syncer) Pause() {
	if !s.paused.Swap(true) {
		s.logger.Info("Subscription sync paused")
	}
}

// Resume undoes Pause. The next cycle applies the registry again.
func (s *Syncer) Resume() {
	if s.paused.Swap(false) {
		s.logger.Info("Subscription sync resumed")
	}
}

// Paused reports whether Pause is in effect.
func (s *Syncer) Paused() bool { return s.paused.Load() }

// SyncOnce reads the registry and applies the result. A registry failure skips
// the cycle and leaves the connection untouched, as does a paused syncer or a
// done ctx.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if s.paused.Load() {
		metrics.SyncRuns.WithLabelValues("paused").Inc()
		s.logger.Debug("Subscription sync paused, skipping cycle")
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, registryTimeout)
	ids, err := s.source.ListDesiredIdentifiers(rctx)
	cancel()
	if err != nil {
		metrics.SyncRuns.WithLabelValues("registry_error").Inc()
		err = apperrors.RegistryError("list identifiers", err)
		s.logger.Error("Failed to read tracked carriers, skipping sync cycle", zap.Error(err))
		return err
	}

	if ctx.Err() != nil || s.paused.Load() {
		return ctx.Err()
	}

	metrics.SyncRuns.WithLabelValues("applied").Inc()
	s.logger.Debug("Applying tracked identifiers", zap.Int("count", len(ids)))
	s.manager.Apply(ids)
	return nil
}

// Prune drops an identifier nobody resolves from the live subscription. It is
// best effort: throttled, skipped unless the connection is open, and undone by
// the next sync if the registry still lists the identifier.
func (s *Syncer) Prune(identifier string) {
	if !s.opts.Prune {
		return
	}
	if s.paused.Load() || s.manager.State() != StateOpen {
		metrics.Prunes.WithLabelValues("skipped").Inc()
		return
	}

	remaining := NewIdentifierSet(s.manager.Identifiers()...)
	if !remaining.Remove(identifier) {
		metrics.Prunes.WithLabelValues("absent").Inc()
		return
	}
	if !s.limiter.Allow() {
		metrics.Prunes.WithLabelValues("throttled").Inc()
		s.logger.Debug("Prune throttled", zap.String("mmsi", identifier))
		return
	}

	metrics.Prunes.WithLabelValues("applied").Inc()
	s.logger.Info("Pruning unresolved identifier from subscription",
		zap.String("mmsi", identifier),
		zap.Int("remaining", remaining.Len()))
	s.manager.Apply(remaining.Slice())
}
