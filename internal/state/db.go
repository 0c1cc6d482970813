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

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
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
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS engine_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			parameters JSONB NOT NULL,
			CONSTRAINT uq_engine_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_engine_parameters_config_active_timestamp ON engine_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS portfolio_snapshots (
			snapshot_id BIGSERIAL PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			params_id INTEGER REFERENCES engine_parameters(params_id),

			-- The request
			total_allocation_usd DECIMAL(20, 2) NOT NULL,
			risk_tolerance VARCHAR(32) NOT NULL,
			diversification VARCHAR(32) NOT NULL,

			-- The result
			pool_ids TEXT[] NOT NULL, -- PostgreSQL array of pool IDs, for lookups by pool
			allocations JSONB NOT NULL,
			summary JSONB NOT NULL,
			risk_warnings TEXT[],
			generated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_portfolio_snapshots_created ON portfolio_snapshots(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_portfolio_snapshots_pool_ids ON portfolio_snapshots USING GIN (pool_ids);

		CREATE TABLE IF NOT EXISTS rebalance_analyses (
			analysis_id BIGSERIAL PRIMARY KEY,
			snapshot_id BIGINT NOT NULL REFERENCES portfolio_snapshots(snapshot_id) ON DELETE CASCADE,
			run_number BIGINT NOT NULL DEFAULT 0,
			checked_at TIMESTAMPTZ NOT NULL,
			overall_health VARCHAR(32) NOT NULL,
			summary TEXT NOT NULL,
			critical_count INTEGER NOT NULL,
			warning_count INTEGER NOT NULL,
			info_count INTEGER NOT NULL,
			alerts JSONB NOT NULL,
			skipped_pools TEXT[]
		);
		CREATE INDEX IF NOT EXISTS idx_rebalance_analyses_snapshot ON rebalance_analyses(snapshot_id, checked_at DESC);

		-- Run counter table for persistent global monitoring run tracking
		CREATE TABLE IF NOT EXISTS analysis_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_run BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO analysis_counter (id, current_run)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return ErrDBNotInitialized
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
