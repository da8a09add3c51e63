package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradedvm/internal/domain"
)

// SeenSet implements domain.SeenSet with one SETNX key per event id.
type SeenSet struct {
	rdb  *redis.Client
	keys keyspace
	ttl  time.Duration
}

// NewSeenSet creates a SeenSet whose entries expire after ttl.
func NewSeenSet(c *Client, ttl time.Duration) *SeenSet {
	return &SeenSet{rdb: c.rdb, keys: c.keys, ttl: ttl}
}

func (k keyspace) seen(id string) string { return k.key("seen", id) }

// MarkSeen records id and reports whether this call was the first to do so.
func (s *SeenSet) MarkSeen(ctx context.Context, id string) (bool, error) {
	fresh, err := s.rdb.SetNX(ctx, s.keys.seen(id), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: mark seen %s: %w", id, err)
	}
	return fresh, nil
}

// Forget deletes the keys for ids. Events that failed to store are
// forgotten so the relay's next delivery is not dropped as a duplicate.
func (s *SeenSet) Forget(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keys.seen(id)
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: forget %d seen ids: %w", len(ids), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SeenSet = (*SeenSet)(nil)
