package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ListingStore persists validated listings keyed by address.
type ListingStore interface {
	Upsert(ctx context.Context, rec ListingRecord) error
	UpsertBatch(ctx context.Context, recs []ListingRecord) error
	GetByAddr(ctx context.Context, addr string) (ListingRecord, error)
	List(ctx context.Context, filter ListingFilter) ([]ListingRecord, error)
	Delete(ctx context.Context, addr string) error
	Count(ctx context.Context) (int64, error)
}

// RejectStore persists validation failures.
type RejectStore interface {
	Insert(ctx context.Context, r ListingReject) error
	List(ctx context.Context, opts ListOpts) ([]ListingReject, error)
	ListBefore(ctx context.Context, before time.Time) ([]ListingReject, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeMessageStore persists negotiation messages.
type TradeMessageStore interface {
	Insert(ctx context.Context, m TradeMessage) error
	ListByOrder(ctx context.Context, orderID string, opts ListOpts) ([]TradeMessage, error)
	ListByListing(ctx context.Context, listingAddr string, opts ListOpts) ([]TradeMessage, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradeMessage, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
