package database

import (
	"context"
	"fmt"
	"time"

	"gamma-trading-bot/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// RunMigrations creates the touch-history schema if it does not exist
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS level_records (
			symbol      TEXT             NOT NULL,
			level       DOUBLE PRECISION NOT NULL,
			record      JSONB            NOT NULL,
			updated_at  TIMESTAMPTZ      NOT NULL DEFAULT now(),
			PRIMARY KEY (symbol, level)
		)`,
		`CREATE TABLE IF NOT EXISTS touch_events (
			id          TEXT             PRIMARY KEY,
			symbol      TEXT             NOT NULL,
			level       DOUBLE PRECISION NOT NULL,
			event       JSONB            NOT NULL,
			recorded_at TIMESTAMPTZ      NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_touch_events_level
			ON touch_events (symbol, level)`,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
