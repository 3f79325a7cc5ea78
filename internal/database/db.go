// internal/database/db.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the shared connection pool. Connect sets it once at startup.
var DB *pgxpool.Pool

// ErrNotConnected is returned when a query runs before Connect.
var ErrNotConnected = errors.New("database not connected")

// Connect opens the pool for url, pings it and installs it as DB.
func Connect(ctx context.Context, url string) error {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database at %s:%d: %w", config.ConnConfig.Host, config.ConnConfig.Port, err)
	}

	DB = pool
	return nil
}

// Close releases the pool if one is open.
func Close() {
	if DB != nil {
		DB.Close()
		DB = nil
	}
}

func pool() (*pgxpool.Pool, error) {
	if DB == nil {
		return nil, ErrNotConnected
	}
	return DB, nil
}
