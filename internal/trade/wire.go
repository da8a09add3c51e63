package trade

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/tradedvm/internal/nostr"
)

// Chain links a message to the conversation it belongs to. An empty RootID
// omits the chain tags.
type Chain struct {
	RootID string `json:"root_id,omitempty"`
	PrevID string `json:"prev_id,omitempty"`
}

// ToWireParts validates env and renders it as an unsigned event: the
// envelope JSON as content, an "a" tag for the listing and a "d" tag for
// the order, plus chain tags when chain has a root.
func ToWireParts[T any](env Envelope[T], chain Chain) (nostr.WireParts, error) {
	if err := env.Validate(); err != nil {
		return nostr.WireParts{}, err
	}
	content, err := json.Marshal(env)
	if err != nil {
		return nostr.WireParts{}, fmt.Errorf("trade: encode envelope: %w", err)
	}
	tags := [][]string{{TagA, env.ListingAddr}}
	orderID := env.OrderIDOrEmpty()
	switch {
	case chain.RootID != "":
		tags = PushChainTags(tags, chain.RootID, chain.PrevID, orderID)
	case orderID != "":
		tags = append(tags, []string{TagD, orderID})
	}
	return nostr.WireParts{Kind: env.MessageType.Kind(), Content: string(content), Tags: tags}, nil
}

// EnvelopeFromWire decodes and validates the envelope carried in parts. The
// domain must be "trade:listing", the event kind must match the message
// type, and an "a" tag, when present, must agree with the listing address.
func EnvelopeFromWire[T any](parts nostr.WireParts) (Envelope[T], error) {
	var env Envelope[T]
	if err := json.Unmarshal([]byte(parts.Content), &env); err != nil {
		return Envelope[T]{}, fmt.Errorf("trade: decode envelope: %w", err)
	}
	if env.Domain != Domain {
		return Envelope[T]{}, fmt.Errorf("%w: %q", ErrUnknownDomain, env.Domain)
	}
	if want := env.MessageType.Kind(); parts.Kind != want {
		return Envelope[T]{}, fmt.Errorf("%w: %s travels as %d, got %d", ErrKindMismatch, env.MessageType, want, parts.Kind)
	}
	if err := env.Validate(); err != nil {
		return Envelope[T]{}, err
	}
	if a, ok := nostr.FindTag(parts.Tags, TagA); ok {
		if v, _ := a.Value(1); v != env.ListingAddr {
			return Envelope[T]{}, fmt.Errorf("trade: a tag %q does not match listing_addr %q", v, env.ListingAddr)
		}
	}
	return env, nil
}
