package domain

import (
	"encoding/json"
	"time"
)

// TradeMessage is one negotiation message seen on a relay or built locally.
type TradeMessage struct {
	EventID     string          `json:"event_id"`
	Kind        int             `json:"kind"`
	MessageType string          `json:"type"`
	OrderID     string          `json:"order_id,omitempty"`
	ListingAddr string          `json:"listing_addr"`
	PubKey      string          `json:"pubkey"`
	Envelope    json.RawMessage `json:"envelope"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IngestEvent is published on the signal bus after each processed event.
type IngestEvent struct {
	EventID     string    `json:"event_id"`
	Kind        int       `json:"kind"`
	ListingAddr string    `json:"listing_addr,omitempty"`
	Valid       bool      `json:"valid"`
	Code        string    `json:"code,omitempty"`
	At          time.Time `json:"at"`
}
