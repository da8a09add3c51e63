package trade

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/value"
)

type OrderItem struct {
	BinID    string `json:"bin_id"`
	BinCount uint32 `json:"bin_count"`
}

type OrderStatus string

const (
	OrderDraft      OrderStatus = "draft"
	OrderValidated  OrderStatus = "validated"
	OrderRequested  OrderStatus = "requested"
	OrderQuestioned OrderStatus = "questioned"
	OrderRevised    OrderStatus = "revised"
	OrderAccepted   OrderStatus = "accepted"
	OrderDeclined   OrderStatus = "declined"
	OrderCancelled  OrderStatus = "cancelled"
	OrderFulfilled  OrderStatus = "fulfilled"
	OrderCompleted  OrderStatus = "completed"
)

// Order is the order_request payload.
type Order struct {
	OrderID      string                `json:"order_id"`
	ListingAddr  string                `json:"listing_addr"`
	BuyerPubKey  string                `json:"buyer_pubkey"`
	SellerPubKey string                `json:"seller_pubkey"`
	Items        []OrderItem           `json:"items"`
	Discounts    []value.DiscountValue `json:"discounts,omitempty"`
	Notes        *string               `json:"notes,omitempty"`
	Status       OrderStatus           `json:"status"`
}

// OrderChangeKind discriminates OrderChange.
type OrderChangeKind string

const (
	ChangeBinCount   OrderChangeKind = "bin_count"
	ChangeItemAdd    OrderChangeKind = "item_add"
	ChangeItemRemove OrderChangeKind = "item_remove"
)

// OrderChange is one edit in a revision. ItemIndex is used by bin_count and
// item_remove, BinCount by bin_count, Item by item_add.
type OrderChange struct {
	Kind      OrderChangeKind
	ItemIndex uint32
	BinCount  uint32
	Item      OrderItem
}

type changeBody struct {
	ItemIndex *uint32    `json:"item_index,omitempty"`
	BinCount  *uint32    `json:"bin_count,omitempty"`
	Item      *OrderItem `json:"item,omitempty"`
}

type kindAmount struct {
	Kind   string          `json:"kind"`
	Amount json.RawMessage `json:"amount,omitempty"`
}

func (c OrderChange) MarshalJSON() ([]byte, error) {
	var body changeBody
	switch c.Kind {
	case ChangeBinCount:
		body = changeBody{ItemIndex: &c.ItemIndex, BinCount: &c.BinCount}
	case ChangeItemAdd:
		body = changeBody{Item: &c.Item}
	case ChangeItemRemove:
		body = changeBody{ItemIndex: &c.ItemIndex}
	default:
		return nil, fmt.Errorf("trade: unknown order change kind %q", c.Kind)
	}
	amount, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(kindAmount{Kind: string(c.Kind), Amount: amount})
}

func (c *OrderChange) UnmarshalJSON(data []byte) error {
	var ka kindAmount
	if err := json.Unmarshal(data, &ka); err != nil {
		return err
	}
	var body changeBody
	if len(ka.Amount) > 0 {
		if err := json.Unmarshal(ka.Amount, &body); err != nil {
			return err
		}
	}
	kind := OrderChangeKind(ka.Kind)
	switch kind {
	case ChangeBinCount:
		if body.ItemIndex == nil || body.BinCount == nil {
			return errors.New("trade: bin_count change needs item_index and bin_count")
		}
		*c = OrderChange{Kind: kind, ItemIndex: *body.ItemIndex, BinCount: *body.BinCount}
	case ChangeItemAdd:
		if body.Item == nil {
			return errors.New("trade: item_add change needs item")
		}
		*c = OrderChange{Kind: kind, Item: *body.Item}
	case ChangeItemRemove:
		if body.ItemIndex == nil {
			return errors.New("trade: item_remove change needs item_index")
		}
		*c = OrderChange{Kind: kind, ItemIndex: *body.ItemIndex}
	default:
		return fmt.Errorf("trade: unknown order change kind %q", ka.Kind)
	}
	return nil
}

// Apply returns items with the change applied. Out-of-range indexes fail.
func (c OrderChange) Apply(items []OrderItem) ([]OrderItem, error) {
	out := append([]OrderItem(nil), items...)
	switch c.Kind {
	case ChangeBinCount:
		if int(c.ItemIndex) >= len(out) {
			return nil, fmt.Errorf("trade: item index %d out of range", c.ItemIndex)
		}
		out[c.ItemIndex].BinCount = c.BinCount
	case ChangeItemAdd:
		out = append(out, c.Item)
	case ChangeItemRemove:
		if int(c.ItemIndex) >= len(out) {
			return nil, fmt.Errorf("trade: item index %d out of range", c.ItemIndex)
		}
		out = append(out[:c.ItemIndex], out[c.ItemIndex+1:]...)
	default:
		return nil, fmt.Errorf("trade: unknown order change kind %q", c.Kind)
	}
	return out, nil
}

type OrderRevision struct {
	RevisionID string        `json:"revision_id"`
	OrderID    string        `json:"order_id"`
	Changes    []OrderChange `json:"changes"`
	Reason     *string       `json:"reason,omitempty"`
}

// ApplyTo applies every change in order.
func (r OrderRevision) ApplyTo(o Order) (Order, error) {
	items := o.Items
	for i, c := range r.Changes {
		var err error
		if items, err = c.Apply(items); err != nil {
			return Order{}, fmt.Errorf("revision %s change %d: %w", r.RevisionID, i, err)
		}
	}
	o.Items = items
	o.Status = OrderRevised
	return o, nil
}

type Question struct {
	QuestionID   string  `json:"question_id"`
	OrderID      *string `json:"order_id"`
	ListingAddr  *string `json:"listing_addr"`
	QuestionText string  `json:"question_text"`
}

type Answer struct {
	QuestionID  string  `json:"question_id"`
	OrderID     *string `json:"order_id"`
	ListingAddr *string `json:"listing_addr"`
	AnswerText  string  `json:"answer_text"`
}

type DiscountRequest struct {
	DiscountID string              `json:"discount_id"`
	OrderID    string              `json:"order_id"`
	Value      value.DiscountValue `json:"value"`
	Conditions *string             `json:"conditions,omitempty"`
}

type DiscountOffer struct {
	DiscountID string              `json:"discount_id"`
	OrderID    string              `json:"order_id"`
	Value      value.DiscountValue `json:"value"`
	Conditions *string             `json:"conditions,omitempty"`
}

// DiscountDecision is accept (with the agreed value) or decline (with an
// optional reason).
type DiscountDecision struct {
	Accepted bool
	Value    value.DiscountValue
	Reason   *string
}

func (d DiscountDecision) MarshalJSON() ([]byte, error) {
	var (
		kind string
		body any
	)
	if d.Accepted {
		kind, body = "accept", struct {
			Value value.DiscountValue `json:"value"`
		}{d.Value}
	} else {
		kind, body = "decline", struct {
			Reason *string `json:"reason"`
		}{d.Reason}
	}
	amount, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(kindAmount{Kind: kind, Amount: amount})
}

func (d *DiscountDecision) UnmarshalJSON(data []byte) error {
	var ka kindAmount
	if err := json.Unmarshal(data, &ka); err != nil {
		return err
	}
	switch ka.Kind {
	case "accept":
		var body struct {
			Value *value.DiscountValue `json:"value"`
		}
		if err := json.Unmarshal(ka.Amount, &body); err != nil {
			return err
		}
		if body.Value == nil {
			return errors.New("trade: discount accept needs value")
		}
		*d = DiscountDecision{Accepted: true, Value: *body.Value}
	case "decline":
		var body struct {
			Reason *string `json:"reason"`
		}
		if len(ka.Amount) > 0 {
			if err := json.Unmarshal(ka.Amount, &body); err != nil {
				return err
			}
		}
		*d = DiscountDecision{Reason: body.Reason}
	default:
		return fmt.Errorf("trade: unknown discount decision %q", ka.Kind)
	}
	return nil
}

type FulfillmentStatus string

const (
	FulfillmentPreparing      FulfillmentStatus = "preparing"
	FulfillmentShipped        FulfillmentStatus = "shipped"
	FulfillmentReadyForPickup FulfillmentStatus = "ready_for_pickup"
	FulfillmentDelivered      FulfillmentStatus = "delivered"
	FulfillmentCancelled      FulfillmentStatus = "cancelled"
)

type FulfillmentUpdate struct {
	Status   FulfillmentStatus `json:"status"`
	Tracking *string           `json:"tracking,omitempty"`
	ETA      *string           `json:"eta,omitempty"`
	Notes    *string           `json:"notes,omitempty"`
}

type Receipt struct {
	Acknowledged bool    `json:"acknowledged"`
	At           uint64  `json:"at"`
	Note         *string `json:"note,omitempty"`
}

type ListingValidateRequest struct {
	ListingEvent *nostr.Event `json:"listing_event"`
}

type ListingValidateResult struct {
	Valid  bool               `json:"valid"`
	Errors []*ValidationError `json:"errors"`
}

type OrderResponse struct {
	Accepted bool    `json:"accepted"`
	Reason   *string `json:"reason,omitempty"`
}

type OrderRevisionResponse struct {
	Accepted bool    `json:"accepted"`
	Reason   *string `json:"reason,omitempty"`
}

type ListingCancel struct {
	Reason *string `json:"reason,omitempty"`
}
