package listing

import (
	"encoding/json"

	"github.com/alanyoungcy/tradedvm/internal/nostr"
)

// ToWireParts renders l as an unsigned kind 30402 event carrying the full
// tag set and the listing JSON as content.
func ToWireParts(l Listing) (nostr.WireParts, error) {
	return ToWirePartsWithKind(l, nostr.KindListing)
}

// ToWirePartsWithKind is ToWireParts for a caller-chosen kind.
func ToWirePartsWithKind(l Listing, kind int) (nostr.WireParts, error) {
	tags, err := TagsFull(l)
	if err != nil {
		return nostr.WireParts{}, err
	}
	content, err := json.Marshal(l)
	if err != nil {
		return nostr.WireParts{}, &EncodeError{Kind: JSONKind, Field: "content", Err: err}
	}
	return nostr.WireParts{Kind: kind, Content: string(content), Tags: tags}, nil
}
