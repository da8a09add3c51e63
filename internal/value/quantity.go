package value

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Quantity is an exact amount of a unit with an optional display label
// (e.g. "bag").
type Quantity struct {
	Amount decimal.Decimal `json:"amount"`
	Unit   Unit            `json:"unit"`
	Label  *string         `json:"label,omitempty"`
}

func NewQuantity(amount decimal.Decimal, unit Unit) Quantity {
	return Quantity{Amount: amount, Unit: unit}
}

func ZeroQuantity(unit Unit) Quantity {
	return Quantity{Amount: decimal.Zero, Unit: unit}
}

// WithLabel returns a copy of q labelled with label. A blank label clears it.
func (q Quantity) WithLabel(label string) Quantity {
	label = strings.TrimSpace(label)
	if label == "" {
		q.Label = nil
		return q
	}
	q.Label = &label
	return q
}

func (q Quantity) LabelOr(fallback string) string {
	if q.Label == nil {
		return fallback
	}
	return *q.Label
}

func (q Quantity) IsZero() bool { return q.Amount.IsZero() }

func (q Quantity) EnsureNonNegative() error {
	if q.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

func (q Quantity) Add(o Quantity) (Quantity, error) {
	if q.Unit != o.Unit {
		return Quantity{}, &UnitMismatchError{Have: o.Unit, Want: q.Unit}
	}
	q.Amount = q.Amount.Add(o.Amount)
	return q, nil
}

func (q Quantity) Sub(o Quantity) (Quantity, error) {
	if q.Unit != o.Unit {
		return Quantity{}, &UnitMismatchError{Have: o.Unit, Want: q.Unit}
	}
	q.Amount = q.Amount.Sub(o.Amount)
	return q, nil
}

func (q Quantity) Mul(factor decimal.Decimal) Quantity {
	q.Amount = q.Amount.Mul(factor)
	return q
}

func (q Quantity) Div(divisor decimal.Decimal) (Quantity, error) {
	if divisor.IsZero() {
		return Quantity{}, ErrDivisionByZero
	}
	q.Amount = q.Amount.Div(divisor)
	return q, nil
}

// ConvertTo expresses q in another unit of the same dimension. The label is
// kept.
func (q Quantity) ConvertTo(unit Unit) (Quantity, error) {
	amount, err := ConvertAmount(q.Amount, q.Unit, unit)
	if err != nil {
		return Quantity{}, err
	}
	q.Amount = amount
	q.Unit = unit
	return q, nil
}

// Equal compares amounts numerically rather than by representation.
func (q Quantity) Equal(o Quantity) bool {
	if q.Unit != o.Unit || !q.Amount.Equal(o.Amount) {
		return false
	}
	if q.Label == nil || o.Label == nil {
		return q.Label == nil && o.Label == nil
	}
	return *q.Label == *o.Label
}

func (q Quantity) String() string {
	if q.Label != nil {
		return fmt.Sprintf("%s %s (%s)", FormatDecimal(q.Amount), q.Unit, *q.Label)
	}
	return fmt.Sprintf("%s %s", FormatDecimal(q.Amount), q.Unit)
}
