// Package listing maps marketplace listings (kind 30402) to and from their
// ordered tag representation and JSON content.
package listing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedvm/internal/value"
)

// Listing is a product offer as published by a seller.
type Listing struct {
	DTag               string                `json:"d_tag"`
	Product            Product               `json:"product"`
	Quantities         []Quantity            `json:"quantities"`
	Prices             []value.QuantityPrice `json:"prices"`
	Discounts          []value.Discount      `json:"discounts,omitempty"`
	InventoryAvailable *decimal.Decimal      `json:"inventory_available,omitempty"`
	Availability       *Availability         `json:"availability,omitempty"`
	DeliveryMethod     *DeliveryMethod       `json:"delivery_method,omitempty"`
	Location           *Location             `json:"location,omitempty"`
	Images             []Image               `json:"images,omitempty"`
}

// ProductTagKeys lists the scalar product tags in encode order.
var ProductTagKeys = [...]string{
	"key", "title", "category", "summary", "process", "lot", "location", "profile", "year",
}

type Product struct {
	Key      string  `json:"key"`
	Title    string  `json:"title"`
	Category string  `json:"category"`
	Summary  *string `json:"summary,omitempty"`
	Process  *string `json:"process,omitempty"`
	Lot      *string `json:"lot,omitempty"`
	Location *string `json:"location,omitempty"`
	Profile  *string `json:"profile,omitempty"`
	Year     *string `json:"year,omitempty"`
}

// Quantity is a sellable bin: a measured amount, an optional display label
// and an optional number of such bins on hand.
type Quantity struct {
	Value value.Quantity `json:"value"`
	Label *string        `json:"label,omitempty"`
	Count *uint32        `json:"count,omitempty"`
}

// EffectiveLabel prefers the bin label over the quantity's own label.
func (q Quantity) EffectiveLabel() (string, bool) {
	if q.Label != nil {
		if v, ok := cleanValue(*q.Label); ok {
			return v, true
		}
	}
	if q.Value.Label != nil {
		return cleanValue(*q.Value.Label)
	}
	return "", false
}

// Total is amount times count, with a missing count treated as one.
func (q Quantity) Total() decimal.Decimal {
	if q.Count == nil {
		return q.Value.Amount
	}
	return q.Value.Amount.Mul(decimal.NewFromInt(int64(*q.Count)))
}

// StatusKind discriminates Status.
type StatusKind string

const (
	StatusActive StatusKind = "active"
	StatusSold   StatusKind = "sold"
	StatusOther  StatusKind = "other"
)

// Status is Active, Sold, or Other with a free-form value.
type Status struct {
	Kind  StatusKind
	Value string
}

func (s Status) String() string {
	if s.Kind == StatusOther {
		return s.Value
	}
	return string(s.Kind)
}

// ParseStatus lowercases v; anything but active or sold becomes Other.
func ParseStatus(v string) Status {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case string(StatusActive):
		return Status{Kind: StatusActive}
	case string(StatusSold):
		return Status{Kind: StatusSold}
	}
	return Status{Kind: StatusOther, Value: v}
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s.Kind == StatusOther {
		return json.Marshal(taggedOut{Kind: string(s.Kind), Amount: map[string]string{"value": s.Value}})
	}
	return json.Marshal(taggedOut{Kind: string(s.Kind)})
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var t taggedIn
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	switch StatusKind(t.Kind) {
	case StatusActive, StatusSold:
		*s = Status{Kind: StatusKind(t.Kind)}
	case StatusOther:
		var body struct {
			Value string `json:"value"`
		}
		if err := t.decodeAmount(&body); err != nil {
			return err
		}
		*s = Status{Kind: StatusOther, Value: body.Value}
	default:
		return fmt.Errorf("listing: unknown status kind %q", t.Kind)
	}
	return nil
}

// AvailabilityKind discriminates Availability.
type AvailabilityKind string

const (
	AvailabilityStatus AvailabilityKind = "status"
	AvailabilityWindow AvailabilityKind = "window"
)

// Availability is either a status or a unix-time window; never both.
type Availability struct {
	Kind   AvailabilityKind
	Status Status
	Start  *uint64
	End    *uint64
}

func AvailabilityFromStatus(s Status) *Availability {
	return &Availability{Kind: AvailabilityStatus, Status: s}
}

func AvailabilityFromWindow(start, end *uint64) *Availability {
	return &Availability{Kind: AvailabilityWindow, Start: start, End: end}
}

type windowJSON struct {
	Start *uint64 `json:"start"`
	End   *uint64 `json:"end"`
}

func (a Availability) MarshalJSON() ([]byte, error) {
	if a.Kind == AvailabilityWindow {
		return json.Marshal(taggedOut{Kind: string(a.Kind), Amount: windowJSON{Start: a.Start, End: a.End}})
	}
	return json.Marshal(taggedOut{Kind: string(AvailabilityStatus), Amount: map[string]Status{"status": a.Status}})
}

func (a *Availability) UnmarshalJSON(data []byte) error {
	var t taggedIn
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	switch AvailabilityKind(t.Kind) {
	case AvailabilityWindow:
		var w windowJSON
		if err := t.decodeAmount(&w); err != nil {
			return err
		}
		*a = Availability{Kind: AvailabilityWindow, Start: w.Start, End: w.End}
	case AvailabilityStatus:
		var body struct {
			Status Status `json:"status"`
		}
		if err := t.decodeAmount(&body); err != nil {
			return err
		}
		*a = Availability{Kind: AvailabilityStatus, Status: body.Status}
	default:
		return fmt.Errorf("listing: unknown availability kind %q", t.Kind)
	}
	return nil
}

// DeliveryKind discriminates DeliveryMethod.
type DeliveryKind string

const (
	DeliveryPickup        DeliveryKind = "pickup"
	DeliveryLocalDelivery DeliveryKind = "local_delivery"
	DeliveryShipping      DeliveryKind = "shipping"
	DeliveryOther         DeliveryKind = "other"
)

type DeliveryMethod struct {
	Kind   DeliveryKind
	Detail string
}

func (d DeliveryMethod) MarshalJSON() ([]byte, error) {
	if d.Kind == DeliveryOther {
		return json.Marshal(taggedOut{Kind: string(d.Kind), Amount: map[string]string{"method": d.Detail}})
	}
	return json.Marshal(taggedOut{Kind: string(d.Kind)})
}

func (d *DeliveryMethod) UnmarshalJSON(data []byte) error {
	var t taggedIn
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	switch DeliveryKind(t.Kind) {
	case DeliveryPickup, DeliveryLocalDelivery, DeliveryShipping:
		*d = DeliveryMethod{Kind: DeliveryKind(t.Kind)}
	case DeliveryOther:
		var body struct {
			Method string `json:"method"`
		}
		if err := t.decodeAmount(&body); err != nil {
			return err
		}
		*d = DeliveryMethod{Kind: DeliveryOther, Detail: body.Method}
	default:
		return fmt.Errorf("listing: unknown delivery kind %q", t.Kind)
	}
	return nil
}

type Location struct {
	Primary string   `json:"primary"`
	City    *string  `json:"city,omitempty"`
	Region  *string  `json:"region,omitempty"`
	Country *string  `json:"country,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Geohash *string  `json:"geohash,omitempty"`
}

type Image struct {
	URL  string     `json:"url"`
	Size *ImageSize `json:"size,omitempty"`
}

type ImageSize struct {
	W uint32 `json:"w"`
	H uint32 `json:"h"`
}

func (s ImageSize) String() string { return fmt.Sprintf("%dx%d", s.W, s.H) }

type taggedOut struct {
	Kind   string `json:"kind"`
	Amount any    `json:"amount,omitempty"`
}

type taggedIn struct {
	Kind   string          `json:"kind"`
	Amount json.RawMessage `json:"amount"`
}

func (t taggedIn) decodeAmount(v any) error {
	if len(t.Amount) == 0 {
		return fmt.Errorf("listing: %s: missing amount", t.Kind)
	}
	return json.Unmarshal(t.Amount, v)
}
