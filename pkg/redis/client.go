// Package redis provides a thin wrapper around go-redis/v9 carrying the two
// pieces of cross-process coordination the sync engine needs: per-document-type
// migration leases and reindex resume checkpoints.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/helpfront/searchsync/pkg/config"
	"github.com/redis/go-redis/v9"
)

const (
	leasePrefix      = "searchsync:migration:"
	checkpointPrefix = "searchsync:checkpoint:"
)

// Client wraps a go-redis client.
type Client struct {
	rdb      *redis.Client
	leaseTTL time.Duration
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Client{rdb: rdb, leaseTTL: ttl}, nil
}

// AcquireLease takes the migration lease for a document type. It returns
// false when another holder already has it.
func (c *Client) AcquireLease(ctx context.Context, docType string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, leasePrefix+docType, time.Now().UTC().Format(time.RFC3339), c.leaseTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring migration lease for %s: %w", docType, err)
	}
	return ok, nil
}

// ReleaseLease drops the migration lease for a document type.
func (c *Client) ReleaseLease(ctx context.Context, docType string) error {
	if err := c.rdb.Del(ctx, leasePrefix+docType).Err(); err != nil {
		return fmt.Errorf("releasing migration lease for %s: %w", docType, err)
	}
	return nil
}

// SetCheckpoint records the last fully committed update-time boundary for a
// document type. It is a resume hint only; reindex runs never read it to
// drive pagination.
func (c *Client) SetCheckpoint(ctx context.Context, docType string, boundary time.Time) error {
	value := boundary.UTC().Format(time.RFC3339Nano)
	if err := c.rdb.Set(ctx, checkpointPrefix+docType, value, 0).Err(); err != nil {
		return fmt.Errorf("storing checkpoint for %s: %w", docType, err)
	}
	return nil
}

// Checkpoint returns the stored boundary for a document type, if any.
func (c *Client) Checkpoint(ctx context.Context, docType string) (time.Time, bool, error) {
	value, err := c.rdb.Get(ctx, checkpointPrefix+docType).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading checkpoint for %s: %w", docType, err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing checkpoint for %s: %w", docType, err)
	}
	return t, true, nil
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
