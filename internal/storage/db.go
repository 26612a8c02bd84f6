package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/config"
	apperrors "github.com/Shugur-Network/aisbridge/internal/errors"
	"github.com/Shugur-Network/aisbridge/internal/logger"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBState represents the current state of the database connection
type DBState int

const (
	DBStateInitial DBState = iota
	DBStateConnecting
	DBStateConnected
	DBStateDisconnecting
	DBStateClosed
)

const pingTimeout = 5 * time.Second

// DB wraps the pgx pool shared by the carrier registry and the position store.
type DB struct {
	Pool       *pgxpool.Pool
	state      DBState
	stateMu    sync.RWMutex
	errorCount atomic.Int32
	logger     *zap.Logger
}

// poolConfig builds the pgx pool configuration from the database section.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URI: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	if pc.MinConns > pc.MaxConns {
		pc.MinConns = pc.MaxConns
	}
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	pc.ConnConfig.ConnectTimeout = 10 * time.Second
	return pc, nil
}

// InitDB opens the pool, retrying with exponential backoff (2s, 4s, 8s...).
func InitDB(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	log := logger.New("storage")
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, apperrors.DatabaseConnectionError(err)
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}
	db := &DB{state: DBStateConnecting, logger: log}
	backoff := 2 * time.Second

	for attempt := 1; attempt <= retries; attempt++ {
		var pool *pgxpool.Pool
		pool, err = pgxpool.NewWithConfig(ctx, pc)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err = pool.Ping(pctx)
			cancel()
			if err == nil {
				db.Pool = pool
				db.setState(DBStateConnected)
				stat := pool.Stat()
				log.Info("Database connected",
					zap.Int("attempts", attempt),
					zap.Int32("max_conns", stat.MaxConns()),
					zap.Int32("total_conns", stat.TotalConns()))
				metrics.DBConnections.WithLabelValues("success").Inc()
				return db, nil
			}
			pool.Close()
		}

		metrics.DBConnections.WithLabelValues("failure").Inc()
		if attempt == retries {
			break
		}
		log.Warn("Failed to connect to database, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempt = retries
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	db.setState(DBStateClosed)
	metrics.DBErrors.WithLabelValues("connection_failed").Inc()
	return nil, apperrors.DatabaseConnectionError(fmt.Errorf("failed to connect after %d attempts: %w", retries, err))
}

// Close closes the pool. Safe to call more than once.
func (db *DB) Close() error {
	db.stateMu.Lock()
	if db.state == DBStateDisconnecting || db.state == DBStateClosed {
		db.stateMu.Unlock()
		return nil
	}
	db.state = DBStateDisconnecting
	db.stateMu.Unlock()

	if db.Pool == nil {
		db.setState(DBStateClosed)
		return fmt.Errorf("database pool is nil")
	}
	db.Pool.Close()
	db.setState(DBStateClosed)
	db.logger.Debug("Database connection closed")
	metrics.DBConnections.WithLabelValues("closed").Inc()
	return nil
}

// ExecuteQuery handles single-row queries.
func (db *DB) ExecuteQuery(ctx context.Context, query string, args ...any) (pgx.Row, error) {
	if !db.IsConnected() {
		return nil, errNotConnected
	}
	return db.Pool.QueryRow(ctx, query, args...), nil
}

// Query handles multi-row queries. The caller closes the rows.
func (db *DB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if !db.IsConnected() {
		return nil, errNotConnected
	}
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		db.recordError("query_failed", err)
		return nil, err
	}
	return rows, nil
}

// ExecuteCommand handles INSERT, UPDATE, DELETE commands.
func (db *DB) ExecuteCommand(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	if !db.IsConnected() {
		return pgconn.CommandTag{}, errNotConnected
	}
	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		db.recordError("command_execution_failed", err)
	}
	return tag, err
}

// IsConnected reports whether the pool is usable.
func (db *DB) IsConnected() bool {
	db.stateMu.RLock()
	defer db.stateMu.RUnlock()
	return db.state == DBStateConnected
}

func (db *DB) setState(s DBState) {
	db.stateMu.Lock()
	db.state = s
	db.stateMu.Unlock()
}

func (db *DB) recordError(kind string, err error) {
	count := db.errorCount.Add(1)
	metrics.DBErrors.WithLabelValues(kind).Inc()
	db.logger.Error("Database operation failed",
		zap.String("kind", kind),
		zap.Int32("error_count", count),
		zap.Error(err))
}

// ErrorCount returns the number of failed operations since start.
func (db *DB) ErrorCount() int32 { return db.errorCount.Load() }

// Ping checks database connectivity
func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// Stats returns database connection pool statistics
func (db *DB) Stats() DatabaseStats {
	if db.Pool == nil {
		return DatabaseStats{}
	}
	stat := db.Pool.Stat()
	return DatabaseStats{
		OpenConnections:    int(stat.TotalConns()),
		InUse:              int(stat.AcquiredConns()),
		Idle:               int(stat.IdleConns()),
		MaxOpenConnections: int(stat.MaxConns()),
	}
}

// DatabaseStats represents database connection pool statistics
type DatabaseStats struct {
	OpenConnections    int `json:"open_connections"`
	InUse              int `json:"in_use"`
	Idle               int `json:"idle"`
	MaxOpenConnections int `json:"max_open_connections"`
}

var errNotConnected = apperrors.New(apperrors.ErrorTypeDatabase, "DB_NOT_CONNECTED", "database is not connected")
