package application

import (
	"context"

	"github.com/Shugur-Network/aisbridge/internal/ais"
	"github.com/Shugur-Network/aisbridge/internal/config"
	"github.com/Shugur-Network/aisbridge/internal/domain"
	"github.com/Shugur-Network/aisbridge/internal/storage"
	"github.com/Shugur-Network/aisbridge/internal/stream"
	"github.com/Shugur-Network/aisbridge/internal/tracker"
	"go.uber.org/zap"
)

// DB returns the node's database instance, nil when the database is disabled.
func (n *Node) DB() *storage.DB {
	return n.db
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config {
	return n.config
}

// Tracker returns the stream connection manager.
func (n *Node) Tracker() *tracker.Manager {
	return n.manager
}

// emptyRegistry stands in for the carrier registry when no database is configured.
type emptyRegistry struct{}

func (emptyRegistry) ListDesiredIdentifiers(context.Context) ([]string, error) { return nil, nil }

func (emptyRegistry) LookupTargets(context.Context, string) ([]int64, error) { return nil, nil }

// logSink writes positions to the log instead of a store.
type logSink struct {
	logger *zap.Logger
}

func newLogSink(log *zap.Logger) *logSink {
	return &logSink{logger: log}
}

func (s *logSink) Deliver(_ context.Context, p domain.Position) error {
	s.logger.Debug("Position",
		zap.Int64("device_id", p.DeviceID),
		zap.Time("fix_time", p.FixTime),
		zap.Float64("lat", p.Latitude),
		zap.Float64("lon", p.Longitude),
		zap.Float64("speed", p.Speed),
		zap.Float64("course", p.Course),
		zap.Any("attributes", p.Attributes))
	return nil
}

// streamDialer adapts stream.Dial to the manager's dial contract.
func streamDialer(cfg config.StreamConfig, onReport func(ais.PositionReport), log *zap.Logger) tracker.DialFunc {
	sc := stream.Config{
		URL:            cfg.URL,
		APIKey:         cfg.APIKey,
		ConnectTimeout: cfg.ConnectTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		PingInterval:   cfg.PingInterval,
		ReadLimit:      cfg.ReadLimit,
	}
	return func(ctx context.Context, identifiers []string, onRemoteClose func(error)) (tracker.Conn, error) {
		c, err := stream.Dial(ctx, sc, identifiers, stream.Handlers{
			OnReport:      onReport,
			OnRemoteClose: onRemoteClose,
		}, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
