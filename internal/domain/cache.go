package domain

import (
	"context"
	"time"
)

// ListingCache provides fast lookups of validated listings by address.
type ListingCache interface {
	Set(ctx context.Context, rec ListingRecord) error
	Get(ctx context.Context, addr string) (ListingRecord, error)
	Invalidate(ctx context.Context, addr string) error
}

// SeenSet deduplicates relay events across workers and restarts.
type SeenSet interface {
	// MarkSeen records id and reports whether it was new.
	MarkSeen(ctx context.Context, id string) (bool, error)
	// Forget removes ids so a redelivery is processed again.
	Forget(ctx context.Context, ids ...string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
