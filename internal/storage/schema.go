package storage

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaDDL string

var requiredTables = []string{"tc_carriers", "tc_positions"}

// InitializeSchema creates the carrier and position tables if they don't exist.
func (db *DB) InitializeSchema(ctx context.Context) error {
	if !db.IsConnected() {
		return errNotConnected
	}

	db.logger.Info("Initializing database schema...")
	if _, err := db.Pool.Exec(ctx, schemaDDL); err != nil {
		db.logger.Error("Failed to initialize database schema")
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return db.VerifySchema(ctx)
}

// VerifySchema checks that all required tables exist.
func (db *DB) VerifySchema(ctx context.Context) error {
	if !db.IsConnected() {
		return errNotConnected
	}

	for _, table := range requiredTables {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public'
				AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}

	db.logger.Debug("Database schema verification completed")
	return nil
}
