package trade

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EnvelopeVersion uint16 = 1
	Domain                 = "trade:listing"
)

// Envelope wraps one negotiation message. Payload validity is the caller's
// concern; Validate only checks the envelope fields.
type Envelope[T any] struct {
	Version     uint16      `json:"version"`
	Domain      string      `json:"domain"`
	MessageType MessageType `json:"type"`
	OrderID     *string     `json:"order_id"`
	ListingAddr string      `json:"listing_addr"`
	Payload     T           `json:"payload"`
}

// RawEnvelope defers payload decoding until the message type is known.
type RawEnvelope = Envelope[json.RawMessage]

// NewEnvelope stamps the current version and domain. An empty orderID is
// stored as absent.
func NewEnvelope[T any](mt MessageType, listingAddr, orderID string, payload T) Envelope[T] {
	env := Envelope[T]{
		Version:     EnvelopeVersion,
		Domain:      Domain,
		MessageType: mt,
		ListingAddr: listingAddr,
		Payload:     payload,
	}
	if orderID != "" {
		env.OrderID = &orderID
	}
	return env
}

// Validate checks version, then listing address, then order id.
func (e Envelope[T]) Validate() error {
	if e.Version != EnvelopeVersion {
		return &EnvelopeError{Code: EnvelopeInvalidVersion, Expected: EnvelopeVersion, Got: e.Version}
	}
	if strings.TrimSpace(e.ListingAddr) == "" {
		return ErrMissingListingAddr
	}
	if e.MessageType.RequiresOrderID() && (e.OrderID == nil || strings.TrimSpace(*e.OrderID) == "") {
		return ErrMissingOrderID
	}
	return nil
}

// OrderIDOrEmpty returns the order id, or "" when absent.
func (e Envelope[T]) OrderIDOrEmpty() string {
	if e.OrderID == nil {
		return ""
	}
	return *e.OrderID
}

// DecodePayload unmarshals a raw envelope payload into the struct that
// belongs to its message type.
func DecodePayload(mt MessageType, raw json.RawMessage) (any, error) {
	var dst any
	switch mt {
	case MsgListingValidateRequest:
		dst = &ListingValidateRequest{}
	case MsgListingValidateResult:
		dst = &ListingValidateResult{}
	case MsgOrderRequest:
		dst = &Order{}
	case MsgOrderResponse:
		dst = &OrderResponse{}
	case MsgOrderRevision:
		dst = &OrderRevision{}
	case MsgOrderRevisionAccept, MsgOrderRevisionDecline:
		dst = &OrderRevisionResponse{}
	case MsgQuestion:
		dst = &Question{}
	case MsgAnswer:
		dst = &Answer{}
	case MsgDiscountRequest:
		dst = &DiscountRequest{}
	case MsgDiscountOffer:
		dst = &DiscountOffer{}
	case MsgDiscountAccept, MsgDiscountDecline:
		dst = &DiscountDecision{}
	case MsgCancel:
		dst = &ListingCancel{}
	case MsgFulfillmentUpdate:
		dst = &FulfillmentUpdate{}
	case MsgReceipt:
		dst = &Receipt{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, mt)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, fmt.Errorf("trade: decode %s payload: %w", mt, err)
	}
	return dst, nil
}
