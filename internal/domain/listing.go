package domain

import (
	"time"

	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/trade"
)

// ListingRecord is a validated listing as persisted and cached. Addr is the
// "30402:<seller>:<d>" address and is the primary key.
type ListingRecord struct {
	Addr         string             `json:"addr"`
	EventID      string             `json:"event_id"`
	SellerPubKey string             `json:"seller_pubkey"`
	ListingID    string             `json:"listing_id"`
	Title        string             `json:"title"`
	ProductType  string             `json:"product_type"`
	Listing      trade.TradeListing `json:"listing"`
	Event        nostr.Event        `json:"event"`
	PublishedAt  time.Time          `json:"published_at"`
	IngestedAt   time.Time          `json:"ingested_at"`
}

// NewListingRecord builds a record from a validated listing and its source event.
func NewListingRecord(tl trade.TradeListing, ev nostr.Event, now time.Time) ListingRecord {
	return ListingRecord{
		Addr:         tl.ListingAddr,
		EventID:      ev.ID,
		SellerPubKey: tl.SellerPubKey,
		ListingID:    tl.ListingID,
		Title:        tl.Title,
		ProductType:  tl.ProductType,
		Listing:      tl,
		Event:        ev,
		PublishedAt:  time.Unix(ev.CreatedAt, 0).UTC(),
		IngestedAt:   now.UTC(),
	}
}

// Newer reports whether r was published after other. Replaceable events with
// the same address keep the latest one.
func (r ListingRecord) Newer(other ListingRecord) bool {
	return r.PublishedAt.After(other.PublishedAt)
}

// ListingReject records an event that failed listing validation.
type ListingReject struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"event_id"`
	PubKey    string    `json:"pubkey"`
	Kind      int       `json:"kind"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ListingFilter narrows listing queries.
type ListingFilter struct {
	ListOpts
	SellerPubKey string
	ProductType  string
}
