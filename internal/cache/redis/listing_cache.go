package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradedvm/internal/domain"
)

const defaultListingTTL = time.Hour

// ListingCache implements domain.ListingCache using Redis hashes holding the
// JSON-serialized record and a per-seller address index.
//
// Key schema:
//
//	{prefix}:listing:{addr}           - hash with fields "data" and "published_at"
//	{prefix}:listing:seller:{pubkey}  - set of addresses
type ListingCache struct {
	rdb  *redis.Client
	keys keyspace
	ttl  time.Duration
}

// NewListingCache creates a ListingCache backed by the given Client. A zero
// ttl uses one hour.
func NewListingCache(c *Client, ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = defaultListingTTL
	}
	return &ListingCache{rdb: c.rdb, keys: c.keys, ttl: ttl}
}

func (k keyspace) listing(addr string) string { return k.key("listing", addr) }
func (k keyspace) listingSeller(pubkey string) string { return k.key("listing", "seller", pubkey) }

// Set stores a listing record. The seller index shares the record TTL.
func (lc *ListingCache) Set(ctx context.Context, rec domain.ListingRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal listing %s: %w", rec.Addr, err)
	}

	key := lc.keys.listing(rec.Addr)
	pipe := lc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "published_at", rec.PublishedAt.Unix())
	pipe.Expire(ctx, key, lc.ttl)
	if rec.SellerPubKey != "" {
		sk := lc.keys.listingSeller(rec.SellerPubKey)
		pipe.SAdd(ctx, sk, rec.Addr)
		pipe.Expire(ctx, sk, lc.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set listing %s: %w", rec.Addr, err)
	}
	return nil
}

// Get retrieves a listing by address.
// It returns domain.ErrNotFound when the key does not exist.
func (lc *ListingCache) Get(ctx context.Context, addr string) (domain.ListingRecord, error) {
	data, err := lc.rdb.HGet(ctx, lc.keys.listing(addr), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ListingRecord{}, domain.ErrNotFound
		}
		return domain.ListingRecord{}, fmt.Errorf("redis: get listing %s: %w", addr, err)
	}
	return decodeListing(addr, data)
}

// SellerAddrs returns the cached addresses published by pubkey.
func (lc *ListingCache) SellerAddrs(ctx context.Context, pubkey string) ([]string, error) {
	addrs, err := lc.rdb.SMembers(ctx, lc.keys.listingSeller(pubkey)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: seller listings %s: %w", pubkey, err)
	}
	return addrs, nil
}

// Invalidate removes a listing and its seller index entry.
func (lc *ListingCache) Invalidate(ctx context.Context, addr string) error {
	rec, err := lc.Get(ctx, addr)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate listing %s: %w", addr, err)
	}

	pipe := lc.rdb.TxPipeline()
	pipe.Del(ctx, lc.keys.listing(addr))
	if err == nil && rec.SellerPubKey != "" {
		pipe.SRem(ctx, lc.keys.listingSeller(rec.SellerPubKey), addr)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate listing %s: %w", addr, err)
	}
	return nil
}

func decodeListing(addr string, data []byte) (domain.ListingRecord, error) {
	var rec domain.ListingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.ListingRecord{}, fmt.Errorf("redis: unmarshal listing %s: %w", addr, err)
	}
	return rec, nil
}

// Compile-time interface check.
var _ domain.ListingCache = (*ListingCache)(nil)
