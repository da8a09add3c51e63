package trade

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/value"
)

// Stage payloads travel as event content for the stage request and result
// kinds. Each request carries the event ids its RequiredMarkers name.

type OrderRequestPayload struct {
	BinID    string `json:"bin_id"`
	BinCount uint32 `json:"bin_count"`
}

type OrderRequest struct {
	Event   nostr.Event         `json:"event"`
	Payload OrderRequestPayload `json:"payload"`
}

type OrderResult struct {
	BinID     string              `json:"bin_id"`
	BinCount  uint32              `json:"bin_count"`
	Price     value.QuantityPrice `json:"price"`
	Discounts []value.Discount    `json:"discounts"`
	Subtotal  Subtotal            `json:"subtotal"`
	Total     Total               `json:"total"`
}

type AcceptRequest struct {
	OrderResultEventID string `json:"order_result_event_id"`
	ListingEventID     string `json:"listing_event_id"`
}

type AcceptResult struct {
	ListingEventID     string `json:"listing_event_id"`
	OrderResultEventID string `json:"order_result_event_id"`
	AcceptedBy         string `json:"accepted_by"`
}

// ConveyanceKind discriminates ConveyanceMethod.
type ConveyanceKind string

const (
	ConveyanceSellerDelivery ConveyanceKind = "seller_delivery"
	ConveyanceBuyerPickup    ConveyanceKind = "buyer_pickup"
	ConveyanceThirdParty     ConveyanceKind = "third_party"
)

// ConveyanceMethod says how goods move. Provider is required for
// third_party; the remaining fields are optional and kind-specific.
type ConveyanceMethod struct {
	Kind         ConveyanceKind `json:"-"`
	Window       *string        `json:"window,omitempty"`
	LocationHint *string        `json:"location_hint,omitempty"`
	ByWhen       *string        `json:"by_when,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	RefID        *string        `json:"ref_id,omitempty"`
	Notes        *string        `json:"notes,omitempty"`
}

type conveyanceFields ConveyanceMethod

func (m ConveyanceMethod) MarshalJSON() ([]byte, error) {
	var body any
	switch m.Kind {
	case ConveyanceSellerDelivery:
		body = struct {
			Window *string `json:"window"`
			Notes  *string `json:"notes"`
		}{m.Window, m.Notes}
	case ConveyanceBuyerPickup:
		body = struct {
			LocationHint *string `json:"location_hint"`
			ByWhen       *string `json:"by_when"`
		}{m.LocationHint, m.ByWhen}
	case ConveyanceThirdParty:
		body = struct {
			Provider string  `json:"provider"`
			RefID    *string `json:"ref_id"`
			Notes    *string `json:"notes"`
		}{m.Provider, m.RefID, m.Notes}
	default:
		return nil, fmt.Errorf("trade: unknown conveyance method %q", m.Kind)
	}
	amount, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(kindAmount{Kind: string(m.Kind), Amount: amount})
}

func (m *ConveyanceMethod) UnmarshalJSON(data []byte) error {
	var ka kindAmount
	if err := json.Unmarshal(data, &ka); err != nil {
		return err
	}
	var f conveyanceFields
	if len(ka.Amount) > 0 {
		if err := json.Unmarshal(ka.Amount, &f); err != nil {
			return err
		}
	}
	f.Kind = ConveyanceKind(ka.Kind)
	switch f.Kind {
	case ConveyanceSellerDelivery, ConveyanceBuyerPickup:
	case ConveyanceThirdParty:
		if f.Provider == "" {
			return errConveyanceProvider
		}
	default:
		return fmt.Errorf("trade: unknown conveyance method %q", ka.Kind)
	}
	*m = ConveyanceMethod(f)
	return nil
}

type ConveyanceRequest struct {
	AcceptResultEventID string           `json:"accept_result_event_id"`
	Method              ConveyanceMethod `json:"method"`
}

type ConveyanceResult struct {
	Verified bool             `json:"verified"`
	Method   ConveyanceMethod `json:"method"`
	Message  *string          `json:"message,omitempty"`
}

type InvoiceRequest struct {
	AcceptResultEventID string `json:"accept_result_event_id"`
}

type InvoiceResult struct {
	TotalSat  uint32  `json:"total_sat"`
	Bolt11    *string `json:"bolt11,omitempty"`
	Note      *string `json:"note,omitempty"`
	ExpiresAt *uint32 `json:"expires_at,omitempty"`
}

// PaymentProofKind discriminates PaymentProof.
type PaymentProofKind string

const (
	ProofZapEvent    PaymentProofKind = "zap_event"
	ProofPreimage    PaymentProofKind = "preimage"
	ProofTxid        PaymentProofKind = "txid"
	ProofExternalRef PaymentProofKind = "external_ref"
)

// PaymentProof carries ID for zap_event and txid, Hex for preimage, and
// Provider plus RefID for external_ref.
type PaymentProof struct {
	Kind     PaymentProofKind `json:"-"`
	ID       string           `json:"id,omitempty"`
	Hex      string           `json:"hex,omitempty"`
	Provider string           `json:"provider,omitempty"`
	RefID    string           `json:"ref_id,omitempty"`
}

type paymentProofFields PaymentProof

func (p PaymentProof) MarshalJSON() ([]byte, error) {
	var body any
	switch p.Kind {
	case ProofZapEvent, ProofTxid:
		body = struct {
			ID string `json:"id"`
		}{p.ID}
	case ProofPreimage:
		body = struct {
			Hex string `json:"hex"`
		}{p.Hex}
	case ProofExternalRef:
		body = struct {
			Provider string `json:"provider"`
			RefID    string `json:"ref_id"`
		}{p.Provider, p.RefID}
	default:
		return nil, fmt.Errorf("trade: unknown payment proof %q", p.Kind)
	}
	amount, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(kindAmount{Kind: string(p.Kind), Amount: amount})
}

func (p *PaymentProof) UnmarshalJSON(data []byte) error {
	var ka kindAmount
	if err := json.Unmarshal(data, &ka); err != nil {
		return err
	}
	var f paymentProofFields
	if len(ka.Amount) > 0 {
		if err := json.Unmarshal(ka.Amount, &f); err != nil {
			return err
		}
	}
	f.Kind = PaymentProofKind(ka.Kind)
	var ok bool
	switch f.Kind {
	case ProofZapEvent, ProofTxid:
		ok = f.ID != ""
	case ProofPreimage:
		ok = f.Hex != ""
	case ProofExternalRef:
		ok = f.Provider != "" && f.RefID != ""
	default:
		return fmt.Errorf("trade: unknown payment proof %q", ka.Kind)
	}
	if !ok {
		return fmt.Errorf("trade: %s proof is missing fields", ka.Kind)
	}
	*p = PaymentProof(f)
	return nil
}

type PaymentProofRequest struct {
	InvoiceResultEventID string       `json:"invoice_result_event_id"`
	Proof                PaymentProof `json:"proof"`
}

type PaymentResult struct {
	Verified bool    `json:"verified"`
	Message  *string `json:"message,omitempty"`
}

type FulfillmentRequest struct {
	PaymentResultEventID string `json:"payment_result_event_id"`
}

type FulfillmentResult struct {
	State    FulfillmentStatus `json:"state"`
	Tracking *string           `json:"tracking,omitempty"`
	ETA      *string           `json:"eta,omitempty"`
	Notes    *string           `json:"notes,omitempty"`
}

type ReceiptRequest struct {
	FulfillmentResultEventID string  `json:"fulfillment_result_event_id"`
	Note                     *string `json:"note,omitempty"`
}

type ReceiptResult struct {
	Acknowledged bool   `json:"acknowledged"`
	At           uint32 `json:"at"`
}
