package value

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownDiscountKind = errors.New("unknown discount kind")
	ErrMalformedDiscount   = errors.New("malformed discount payload")
	ErrDiscountJSON        = errors.New("discount payload is not valid json")
)

// DiscountValueKind discriminates DiscountValue.
type DiscountValueKind string

const (
	DiscountValueMoney   DiscountValueKind = "money"
	DiscountValuePercent DiscountValueKind = "percent"
)

// DiscountValue is either a fixed money amount or a percentage.
type DiscountValue struct {
	Kind    DiscountValueKind
	Money   Money
	Percent Percent
}

func MoneyOff(m Money) DiscountValue { return DiscountValue{Kind: DiscountValueMoney, Money: m} }

func PercentOff(p Percent) DiscountValue {
	return DiscountValue{Kind: DiscountValuePercent, Percent: p}
}

// IsNonNegative reports whether the discount amount is >= 0.
func (v DiscountValue) IsNonNegative() bool {
	if v.Kind == DiscountValuePercent {
		return !v.Percent.Value.IsNegative()
	}
	return !v.Money.Amount.IsNegative()
}

// Apply returns the amount taken off base.
func (v DiscountValue) Apply(base Money) (Money, error) {
	switch v.Kind {
	case DiscountValuePercent:
		return v.Percent.OfQuantized(base), nil
	case DiscountValueMoney:
		if v.Money.Currency != base.Currency {
			return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, v.Money.Currency, base.Currency)
		}
		return v.Money, nil
	default:
		return Money{}, fmt.Errorf("%w: value kind %q", ErrMalformedDiscount, v.Kind)
	}
}

type taggedJSON struct {
	Kind   string          `json:"kind"`
	Amount json.RawMessage `json:"amount"`
}

func (v DiscountValue) MarshalJSON() ([]byte, error) {
	var (
		amount []byte
		err    error
	)
	switch v.Kind {
	case DiscountValueMoney:
		amount, err = json.Marshal(v.Money)
	case DiscountValuePercent:
		amount, err = json.Marshal(v.Percent)
	default:
		return nil, fmt.Errorf("%w: value kind %q", ErrMalformedDiscount, v.Kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedJSON{Kind: string(v.Kind), Amount: amount})
}

func (v *DiscountValue) UnmarshalJSON(data []byte) error {
	var t taggedJSON
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	switch DiscountValueKind(t.Kind) {
	case DiscountValueMoney:
		var m Money
		if err := unmarshalMoney(t.Amount, &m); err != nil {
			return err
		}
		*v = MoneyOff(m)
	case DiscountValuePercent:
		var raw struct {
			Value *json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(t.Amount, &raw); err != nil {
			return err
		}
		if raw.Value == nil {
			return fmt.Errorf("%w: percent value missing", ErrMalformedDiscount)
		}
		var p Percent
		if err := json.Unmarshal(t.Amount, &p); err != nil {
			return err
		}
		*v = PercentOff(p)
	default:
		return fmt.Errorf("%w: value kind %q", ErrMalformedDiscount, t.Kind)
	}
	return nil
}

// DiscountKind is the tag suffix naming a discount shape.
type DiscountKind string

const (
	DiscountQuantity DiscountKind = "quantity"
	DiscountMass     DiscountKind = "mass"
	DiscountSubtotal DiscountKind = "subtotal"
	DiscountTotal    DiscountKind = "total"
)

// QuantityDiscount takes Value off when at least Threshold of the bin named
// by RefQuantity is ordered.
type QuantityDiscount struct {
	RefQuantity string   `json:"ref_quantity"`
	Threshold   Quantity `json:"threshold"`
	Value       Money    `json:"value"`
}

type MassDiscount struct {
	Threshold Quantity `json:"threshold"`
	Value     Money    `json:"value"`
}

type SubtotalDiscount struct {
	Threshold Money         `json:"threshold"`
	Value     DiscountValue `json:"value"`
}

type TotalDiscount struct {
	TotalMin Money   `json:"total_min"`
	Value    Percent `json:"value"`
}

// Discount is a closed union over the four discount shapes. Exactly the field
// matching Kind is set.
type Discount struct {
	Kind     DiscountKind
	Quantity *QuantityDiscount
	Mass     *MassDiscount
	Subtotal *SubtotalDiscount
	Total    *TotalDiscount
}

func NewQuantityDiscount(d QuantityDiscount) Discount {
	return Discount{Kind: DiscountQuantity, Quantity: &d}
}

func NewMassDiscount(d MassDiscount) Discount { return Discount{Kind: DiscountMass, Mass: &d} }

func NewSubtotalDiscount(d SubtotalDiscount) Discount {
	return Discount{Kind: DiscountSubtotal, Subtotal: &d}
}

func NewTotalDiscount(d TotalDiscount) Discount { return Discount{Kind: DiscountTotal, Total: &d} }

func (d Discount) IsNonNegative() bool {
	switch d.Kind {
	case DiscountQuantity:
		return !d.Quantity.Threshold.Amount.IsNegative() && !d.Quantity.Value.Amount.IsNegative()
	case DiscountMass:
		return !d.Mass.Threshold.Amount.IsNegative() && !d.Mass.Value.Amount.IsNegative()
	case DiscountSubtotal:
		return !d.Subtotal.Threshold.Amount.IsNegative() && d.Subtotal.Value.IsNonNegative()
	case DiscountTotal:
		return !d.Total.TotalMin.Amount.IsNegative() && !d.Total.Value.Value.IsNegative()
	}
	return false
}

func (d Discount) payload() (any, error) {
	switch d.Kind {
	case DiscountQuantity:
		if d.Quantity != nil {
			return d.Quantity, nil
		}
	case DiscountMass:
		if d.Mass != nil {
			return d.Mass, nil
		}
	case DiscountSubtotal:
		if d.Subtotal != nil {
			return d.Subtotal, nil
		}
	case DiscountTotal:
		if d.Total != nil {
			return d.Total, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDiscountKind, d.Kind)
	}
	return nil, fmt.Errorf("%w: %s body missing", ErrMalformedDiscount, d.Kind)
}

// EncodeDiscount renders d as its kind suffix and compact JSON payload.
func EncodeDiscount(d Discount) (DiscountKind, string, error) {
	body, err := d.payload()
	if err != nil {
		return "", "", err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", "", fmt.Errorf("value: encode %s discount: %w", d.Kind, err)
	}
	return d.Kind, string(raw), nil
}

// DecodeDiscount parses a payload for the given kind suffix. Unknown kinds
// yield ErrUnknownDiscountKind, text that is not JSON yields ErrDiscountJSON
// and JSON of the wrong shape yields ErrMalformedDiscount.
func DecodeDiscount(kind string, payload string) (Discount, error) {
	if !json.Valid([]byte(payload)) {
		return Discount{}, fmt.Errorf("%w: %s", ErrDiscountJSON, kind)
	}
	switch DiscountKind(kind) {
	case DiscountQuantity:
		var raw struct {
			RefQuantity *string          `json:"ref_quantity"`
			Threshold   *json.RawMessage `json:"threshold"`
			Value       *json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal([]byte(payload), &raw); err != nil || raw.RefQuantity == nil {
			return Discount{}, malformed(kind, err)
		}
		var d QuantityDiscount
		d.RefQuantity = *raw.RefQuantity
		if err := decodeThresholdValue(raw.Threshold, raw.Value, &d.Threshold, &d.Value); err != nil {
			return Discount{}, malformed(kind, err)
		}
		return NewQuantityDiscount(d), nil
	case DiscountMass:
		var raw struct {
			Threshold *json.RawMessage `json:"threshold"`
			Value     *json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return Discount{}, malformed(kind, err)
		}
		var d MassDiscount
		if err := decodeThresholdValue(raw.Threshold, raw.Value, &d.Threshold, &d.Value); err != nil {
			return Discount{}, malformed(kind, err)
		}
		return NewMassDiscount(d), nil
	case DiscountSubtotal:
		var raw struct {
			Threshold *json.RawMessage `json:"threshold"`
			Value     *json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal([]byte(payload), &raw); err != nil || raw.Threshold == nil || raw.Value == nil {
			return Discount{}, malformed(kind, err)
		}
		var d SubtotalDiscount
		if err := unmarshalMoney(*raw.Threshold, &d.Threshold); err != nil {
			return Discount{}, malformed(kind, err)
		}
		if err := json.Unmarshal(*raw.Value, &d.Value); err != nil {
			return Discount{}, malformed(kind, err)
		}
		return NewSubtotalDiscount(d), nil
	case DiscountTotal:
		var raw struct {
			TotalMin *json.RawMessage `json:"total_min"`
			Value    *struct {
				Value *json.RawMessage `json:"value"`
			} `json:"value"`
		}
		if err := json.Unmarshal([]byte(payload), &raw); err != nil || raw.TotalMin == nil || raw.Value == nil || raw.Value.Value == nil {
			return Discount{}, malformed(kind, err)
		}
		var d TotalDiscount
		if err := unmarshalMoney(*raw.TotalMin, &d.TotalMin); err != nil {
			return Discount{}, malformed(kind, err)
		}
		if err := json.Unmarshal(*raw.Value.Value, &d.Value.Value); err != nil {
			return Discount{}, malformed(kind, err)
		}
		return NewTotalDiscount(d), nil
	default:
		return Discount{}, fmt.Errorf("%w: %q", ErrUnknownDiscountKind, kind)
	}
}

// MarshalJSON renders the union as {"kind": ..., "amount": {...}}.
func (d Discount) MarshalJSON() ([]byte, error) {
	body, err := d.payload()
	if err != nil {
		return nil, err
	}
	amount, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedJSON{Kind: string(d.Kind), Amount: amount})
}

func (d *Discount) UnmarshalJSON(data []byte) error {
	var t taggedJSON
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	decoded, err := DecodeDiscount(t.Kind, string(t.Amount))
	if err != nil {
		return err
	}
	*d = decoded
	return nil
}

func malformed(kind string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedDiscount, kind, cause)
	}
	return fmt.Errorf("%w: %s", ErrMalformedDiscount, kind)
}

func decodeThresholdValue(threshold, val *json.RawMessage, q *Quantity, m *Money) error {
	if threshold == nil || val == nil {
		return errors.New("threshold and value are required")
	}
	if err := unmarshalQuantity(*threshold, q); err != nil {
		return err
	}
	return unmarshalMoney(*val, m)
}

func unmarshalMoney(data []byte, m *Money) error {
	var raw struct {
		Amount   *json.RawMessage `json:"amount"`
		Currency *json.RawMessage `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Amount == nil || raw.Currency == nil {
		return errors.New("money requires amount and currency")
	}
	return json.Unmarshal(data, m)
}

func unmarshalQuantity(data []byte, q *Quantity) error {
	var raw struct {
		Amount *json.RawMessage `json:"amount"`
		Unit   *json.RawMessage `json:"unit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Amount == nil || raw.Unit == nil {
		return errors.New("quantity requires amount and unit")
	}
	return json.Unmarshal(data, q)
}
