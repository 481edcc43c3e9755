package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool builds a pgx connection pool from the configured
// DATABASE_URL and pool limits, and pings it before returning so a
// misconfigured database fails the service at startup rather than on
// the first request.
func (c *Config) NewPostgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	poolConfig.MaxConns = int32(c.DBMaxConns)
	poolConfig.MinConns = int32(c.DBMinConns)
	poolConfig.MaxConnLifetime = time.Duration(c.DBMaxConnLifetime) * time.Minute
	poolConfig.MaxConnIdleTime = time.Duration(c.DBMaxConnIdleTime) * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
