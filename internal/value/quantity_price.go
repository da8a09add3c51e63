package value

import (
	"encoding/json"
)

// QuantityPrice is a price expressed per reference quantity, e.g. 20 USD per
// 1 lb.
type QuantityPrice struct {
	Amount   Money    `json:"amount"`
	Quantity Quantity `json:"quantity"`
}

func NewQuantityPrice(amount Money, per Quantity) QuantityPrice {
	return QuantityPrice{Amount: amount, Quantity: per}
}

// UnmarshalJSON also accepts the "price"/"money" and "per" field aliases.
func (p *QuantityPrice) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   *Money    `json:"amount"`
		Price    *Money    `json:"price"`
		Money    *Money    `json:"money"`
		Quantity *Quantity `json:"quantity"`
		Per      *Quantity `json:"per"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Amount != nil:
		p.Amount = *raw.Amount
	case raw.Price != nil:
		p.Amount = *raw.Price
	case raw.Money != nil:
		p.Amount = *raw.Money
	}
	switch {
	case raw.Quantity != nil:
		p.Quantity = *raw.Quantity
	case raw.Per != nil:
		p.Quantity = *raw.Per
	}
	return nil
}

// CostFor prices qty proportionally to the reference quantity. Units are not
// checked; a zero quantity on either side costs nothing.
func (p QuantityPrice) CostFor(qty Quantity) Money {
	if qty.Amount.IsZero() || p.Quantity.Amount.IsZero() {
		return ZeroMoney(p.Amount.Currency)
	}
	return p.Amount.Mul(qty.Amount.Div(p.Quantity.Amount))
}

func (p QuantityPrice) CostForRounded(qty Quantity) Money {
	return p.CostFor(qty).Quantize()
}

// CostForWithQuantizedPrice quantizes the unit price before scaling it.
func (p QuantityPrice) CostForWithQuantizedPrice(qty Quantity) Money {
	if qty.Amount.IsZero() || p.Quantity.Amount.IsZero() {
		return ZeroMoney(p.Amount.Currency)
	}
	return p.Amount.Quantize().Mul(qty.Amount.Div(p.Quantity.Amount))
}

func (p QuantityPrice) TryCostFor(qty Quantity) (Money, error) {
	if p.Quantity.Amount.IsZero() {
		return Money{}, ErrPerQuantityZero
	}
	if qty.Unit != p.Quantity.Unit {
		return Money{}, &UnitMismatchError{Have: qty.Unit, Want: p.Quantity.Unit}
	}
	return p.Amount.Mul(qty.Amount.Div(p.Quantity.Amount)), nil
}

func (p QuantityPrice) TryCostForRounded(qty Quantity) (Money, error) {
	m, err := p.TryCostFor(qty)
	if err != nil {
		return Money{}, err
	}
	return m.Quantize(), nil
}

// TryCostForAmountIn prices an amount given in any mass unit, or in the
// reference unit itself.
func (p QuantityPrice) TryCostForAmountIn(amount Quantity) (Money, error) {
	target := p.Quantity.Unit
	normalized := amount.Amount
	if amount.Unit != target {
		if !amount.Unit.IsMass() || !target.IsMass() {
			return Money{}, &NonConvertibleUnitsError{From: amount.Unit, To: target}
		}
		converted, err := ConvertAmount(amount.Amount, amount.Unit, target)
		if err != nil {
			return Money{}, err
		}
		normalized = converted
	}
	return p.TryCostForRounded(NewQuantity(normalized, target))
}
