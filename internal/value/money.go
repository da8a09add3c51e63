package value

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	maxUint64 = decimal.NewFromUint64(math.MaxUint64)
	maxUint32 = decimal.NewFromInt(math.MaxUint32)
)

// Money is an exact amount in a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

func ZeroMoney(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) IsZero() bool { return m.Amount.IsZero() }

func (m Money) EnsureNonNegative() error {
	if m.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// Quantize rounds the amount to the currency's minor-unit exponent, half away
// from zero.
func (m Money) Quantize() Money {
	return Money{Amount: m.Amount.Round(m.Currency.MinorUnitExponent()), Currency: m.Currency}
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor), Currency: m.Currency}
}

func (m Money) Div(divisor decimal.Decimal) (Money, error) {
	if divisor.IsZero() {
		return Money{}, ErrDivisionByZero
	}
	return Money{Amount: m.Amount.Div(divisor), Currency: m.Currency}, nil
}

// MoneyFromMinorUnits builds a Money from an integer count of minor units.
func MoneyFromMinorUnits(minor uint64, currency Currency) Money {
	return Money{
		Amount:   decimal.NewFromUint64(minor).Shift(-currency.MinorUnitExponent()),
		Currency: currency,
	}
}

// ToMinorUnitsExact rounds half away from zero to the currency exponent and
// returns the amount as a whole number of minor units.
func (m Money) ToMinorUnitsExact() (uint64, error) {
	return m.toMinor(m.Amount.Round(m.Currency.MinorUnitExponent()), maxUint64)
}

// Rounding selects how an amount is brought to the currency exponent.
type Rounding int

const (
	RoundHalfAwayFromZero Rounding = iota
	RoundHalfEven
	RoundTowardZero
	RoundAwayFromZero
)

func (r Rounding) apply(d decimal.Decimal, places int32) decimal.Decimal {
	switch r {
	case RoundHalfEven:
		return d.RoundBank(places)
	case RoundTowardZero:
		return d.RoundDown(places)
	case RoundAwayFromZero:
		return d.RoundUp(places)
	default:
		return d.Round(places)
	}
}

// ToMinorUnitsRounded is ToMinorUnitsExact with an explicit rounding mode.
func (m Money) ToMinorUnitsRounded(r Rounding) (uint64, error) {
	return m.toMinor(r.apply(m.Amount, m.Currency.MinorUnitExponent()), maxUint64)
}

// ToMinorUnitsExact32 is ToMinorUnitsExact bounded to uint32.
func (m Money) ToMinorUnitsExact32() (uint32, error) {
	v, err := m.toMinor(m.Amount.Round(m.Currency.MinorUnitExponent()), maxUint32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func (m Money) toMinor(scaled, limit decimal.Decimal) (uint64, error) {
	minor := scaled.Mul(pow10(m.Currency.MinorUnitExponent()))
	if !minor.IsInteger() {
		return 0, ErrNotWholeMinorUnits
	}
	if minor.IsNegative() || minor.GreaterThan(limit) {
		return 0, ErrAmountOverflow
	}
	return minor.BigInt().Uint64(), nil
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", FormatDecimal(m.Amount), m.Currency)
}
