// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

var ErrDBNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

// schemaSQL creates the node's history tables. Contract state itself lives in the KV store.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS pool_configs (
		snapshot_id SERIAL PRIMARY KEY,
		pool_address VARCHAR(128) NOT NULL,
		version INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		owner VARCHAR(128) NOT NULL,
		beneficiary VARCHAR(128) NOT NULL,
		fee_collector VARCHAR(128) NOT NULL,
		moneymarket VARCHAR(128) NOT NULL,
		exchange_rate_feeder VARCHAR(128) NOT NULL,
		stable_denom VARCHAR(128) NOT NULL,
		atoken VARCHAR(128) NOT NULL,
		dp_token VARCHAR(128) NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_pool_configs_pool_active ON pool_configs(pool_address, is_active, recorded_at DESC);

	CREATE TABLE IF NOT EXISTS execution_receipts (
		receipt_id SERIAL PRIMARY KEY,
		execution_id UUID NOT NULL UNIQUE,
		executed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		action VARCHAR(50) NOT NULL,
		contract VARCHAR(128) NOT NULL,
		sender VARCHAR(128) NOT NULL,
		funds TEXT NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		error_message TEXT,
		block_height BIGINT NOT NULL,
		block_time BIGINT NOT NULL,
		attributes JSONB,
		messages JSONB,
		message_types TEXT[], -- PostgreSQL array of dispatched message types
		duration_ms BIGINT NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_execution_receipts_timestamp ON execution_receipts(executed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_execution_receipts_action ON execution_receipts(action);
	CREATE INDEX IF NOT EXISTS idx_execution_receipts_sender ON execution_receipts(sender);
`

// dropSQL removes every table EnsureSchema creates.
const dropSQL = `
	DROP TABLE IF EXISTS execution_receipts CASCADE;
	DROP TABLE IF EXISTS pool_configs CASCADE;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema drops every history table. Used by the reset script.
func DropSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if _, err := DB.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Info().Msg("Dropped all history tables.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
