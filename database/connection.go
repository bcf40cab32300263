package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arenaserver/models"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

const (
	applicationName   = "arena"
	pingTimeout       = 5 * time.Second
	healthCheckPeriod = 30 * time.Second
	maxConnIdleTime   = 5 * time.Minute
)

// DB is the shared pool. Every room operation holds at most one connection
// for the length of its unit of work.
type DB struct {
	*pgxpool.Pool
}

// NewConnection opens the pool and verifies the server is reachable. Errors
// wrap models.ErrStore.
func NewConnection(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := poolConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %w", models.ErrStore, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", models.ErrStore, err)
	}

	log.WithFields(log.Fields{
		"host":      config.ConnConfig.Host,
		"database":  config.ConnConfig.Database,
		"max_conns": config.MaxConns,
	}).Info("Database pool ready")
	return &DB{Pool: pool}, nil
}

// poolConfig parses databaseURL and fills in what the URL leaves unset.
// pool_* query parameters in the URL take precedence.
func poolConfig(databaseURL string) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse database URL: %w", models.ErrStore, err)
	}

	if !strings.Contains(databaseURL, "pool_health_check_period") {
		config.HealthCheckPeriod = healthCheckPeriod
	}
	if !strings.Contains(databaseURL, "pool_max_conn_idle_time") {
		config.MaxConnIdleTime = maxConnIdleTime
	}
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return config, nil
}

// Close waits for acquired connections to be released and closes the pool
func (db *DB) Close() {
	db.Pool.Close()
	log.Info("Database pool closed")
}
