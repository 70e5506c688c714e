package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	poolMaxConns          = 25
	poolMinConns          = 2
	poolMaxConnIdleTime   = 5 * time.Minute
	poolMaxConnLifetime   = time.Hour
	poolHealthCheckPeriod = 30 * time.Second
	connectTimeout        = 5 * time.Second
)

// NewPostgresPool opens the ledger connection pool and verifies it with a ping. Pool limits
// in the URL (pool_max_conns etc.) override the defaults.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if !strings.Contains(url, "pool_max_conns") {
		cfg.MaxConns = poolMaxConns
	}
	if !strings.Contains(url, "pool_min_conns") {
		cfg.MinConns = poolMinConns
	}
	cfg.MaxConnIdleTime = poolMaxConnIdleTime
	cfg.MaxConnLifetime = poolMaxConnLifetime
	cfg.HealthCheckPeriod = poolHealthCheckPeriod

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
