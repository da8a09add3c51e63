package trade

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/tradedvm/internal/listing"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
)

// Address identifies a listing as kind:seller_pubkey:listing_id.
type Address struct {
	Kind         uint16 `json:"kind"`
	SellerPubKey string `json:"seller_pubkey"`
	ListingID    string `json:"listing_id"`
}

// ListingAddress builds the address of a kind 30402 listing.
func ListingAddress(seller, listingID string) Address {
	return Address{Kind: nostr.KindListing, SellerPubKey: seller, ListingID: listingID}
}

// ParseAddress is the inverse of Address.String. Exactly three fields are
// required; the kind must be a non-profile uint16 and the listing id must be
// shaped like a d tag.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	kind, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	seller, id := parts[1], parts[2]
	if kind == nostr.KindProfile ||
		strings.TrimSpace(seller) == "" ||
		strings.TrimSpace(id) == "" ||
		!listing.IsDTagBase64URL(id) {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address{Kind: uint16(kind), SellerPubKey: seller, ListingID: id}, nil
}

func (a Address) String() string {
	return strconv.FormatUint(uint64(a.Kind), 10) + ":" + a.SellerPubKey + ":" + a.ListingID
}
