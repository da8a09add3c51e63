// Package redis backs the listing cache, the ingest seen set, distributed
// locks, rate limiting and the ingest signal bus with go-redis/v9. Every key
// lives under the configured namespace so several deployments can share one
// server.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is the namespace used when ClientConfig.KeyPrefix is empty.
const DefaultKeyPrefix = "tradedvm"

// ClientConfig mirrors config.RedisConfig.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	KeyPrefix  string
	ClientName string
}

// keyspace joins key parts under a namespace: "tradedvm:listing:<addr>".
type keyspace string

func (k keyspace) key(parts ...string) string {
	return string(k) + ":" + strings.Join(parts, ":")
}

func newKeyspace(prefix string) keyspace {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return keyspace(prefix)
}

// Client owns the connection pool shared by the cache components.
type Client struct {
	rdb  *redis.Client
	keys keyspace
}

// New connects and pings the server.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
		ClientName: cfg.ClientName,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, keys: newKeyspace(cfg.KeyPrefix)}, nil
}

// Ping is the health check used by /api/health.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Prefix returns the key namespace.
func (c *Client) Prefix() string {
	return string(c.keys)
}
