// Package postgres opens the read-only connection pool against the
// source-of-truth database that document type sources paginate over.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/helpfront/searchsync/pkg/config"
)

const pingTimeout = 5 * time.Second

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens the pool and verifies connectivity before returning.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	open, idle, lifetime := poolLimits(cfg)
	db.SetMaxOpenConns(open)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

// poolLimits fills unset pool knobs. The workload is a handful of concurrent
// pagination streams, one per document type, so the fallbacks stay small.
func poolLimits(cfg config.PostgresConfig) (open, idle int, lifetime time.Duration) {
	open = cfg.MaxOpenConns
	if open <= 0 {
		open = 8
	}
	idle = cfg.MaxIdleConns
	if idle <= 0 {
		idle = 2
	}
	lifetime = cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	return open, idle, lifetime
}

func (c *Client) Close() error {
	return c.DB.Close()
}
