package trade

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedvm/internal/listing"
	"github.com/alanyoungcy/tradedvm/internal/value"
)

var (
	ErrUnknownBin   = errors.New("unknown listing bin")
	ErrNoBinPrice   = errors.New("no listing price applies to bin")
	ErrZeroBinCount = errors.New("bin count must be positive")
)

// Subtotal is the undiscounted cost of an effective quantity.
type Subtotal struct {
	PriceAmount    value.Money     `json:"price_amount"`
	PriceCurrency  value.Currency  `json:"price_currency"`
	QuantityAmount decimal.Decimal `json:"quantity_amount"`
	QuantityUnit   value.Unit      `json:"quantity_unit"`
}

type Total struct {
	PriceAmount    value.Money     `json:"price_amount"`
	PriceCurrency  value.Currency  `json:"price_currency"`
	QuantityAmount decimal.Decimal `json:"quantity_amount"`
	QuantityUnit   value.Unit      `json:"quantity_unit"`
}

// EffectiveQuantity is amount times count, with a missing count read as one.
func EffectiveQuantity(q listing.Quantity) value.Quantity {
	return value.NewQuantity(q.Total(), q.Value.Unit)
}

func newSubtotal(cost value.Money, qty value.Quantity) Subtotal {
	return Subtotal{
		PriceAmount:    cost,
		PriceCurrency:  cost.Currency,
		QuantityAmount: qty.Amount,
		QuantityUnit:   qty.Unit,
	}
}

// SubtotalFor prices q without checking units, rounding to the currency.
func SubtotalFor(p value.QuantityPrice, q listing.Quantity) Subtotal {
	qty := EffectiveQuantity(q)
	return newSubtotal(p.CostForRounded(qty), qty)
}

func TotalFor(p value.QuantityPrice, q listing.Quantity) Total {
	return Total(SubtotalFor(p, q))
}

// TrySubtotalFor is SubtotalFor that rejects a unit mismatch and a zero
// reference quantity.
func TrySubtotalFor(p value.QuantityPrice, q listing.Quantity) (Subtotal, error) {
	qty := EffectiveQuantity(q)
	cost, err := p.TryCostForRounded(qty)
	if err != nil {
		return Subtotal{}, err
	}
	return newSubtotal(cost, qty), nil
}

func TryTotalFor(p value.QuantityPrice, q listing.Quantity) (Total, error) {
	sub, err := TrySubtotalFor(p, q)
	if err != nil {
		return Total{}, err
	}
	return Total(sub), nil
}

// BinID names a bin by its label, or by its index when it has none.
func BinID(l listing.Listing, i int) string {
	if label, ok := l.Quantities[i].EffectiveLabel(); ok {
		return label
	}
	return strconv.Itoa(i)
}

// FindBin resolves a bin id to its index, trying labels before indexes.
func FindBin(l listing.Listing, binID string) (int, bool) {
	for i, q := range l.Quantities {
		if label, ok := q.EffectiveLabel(); ok && label == binID {
			return i, true
		}
	}
	if i, err := strconv.Atoi(binID); err == nil && i >= 0 && i < len(l.Quantities) {
		return i, true
	}
	return 0, false
}

// Quote is a priced order line with listing discounts applied.
type Quote struct {
	BinID    string              `json:"bin_id"`
	BinCount uint32              `json:"bin_count"`
	Quantity value.Quantity      `json:"quantity"`
	Price    value.QuantityPrice `json:"price"`
	Subtotal value.Money         `json:"subtotal"`
	Discount value.Money         `json:"discount"`
	Total    value.Money         `json:"total"`
	Applied  []value.Discount    `json:"applied,omitempty"`
}

// QuoteItem prices binCount units of a bin. The first price whose
// reference unit matches the bin (or converts to it, for mass) is used.
// Item discounts (quantity, mass) apply first, then subtotal, then total
// thresholds against the running total. A discount priced in another
// currency fails the quote with value.ErrCurrencyMismatch. The total never
// drops below zero.
func QuoteItem(l listing.Listing, item OrderItem) (Quote, error) {
	if item.BinCount == 0 {
		return Quote{}, ErrZeroBinCount
	}
	idx, ok := FindBin(l, item.BinID)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownBin, item.BinID)
	}
	bin := l.Quantities[idx]
	count := item.BinCount
	qty := value.NewQuantity(bin.Value.Amount.Mul(decimal.NewFromInt(int64(count))), bin.Value.Unit)

	price, cost, err := priceFor(l.Prices, qty)
	if err != nil {
		return Quote{}, err
	}
	subtotal := cost.Quantize()
	currency := subtotal.Currency

	q := Quote{
		BinID:    BinID(l, idx),
		BinCount: count,
		Quantity: qty,
		Price:    price,
		Subtotal: subtotal,
		Discount: value.ZeroMoney(currency),
	}

	if err := checkDiscountCurrencies(l.Discounts, currency); err != nil {
		return Quote{}, err
	}

	running := subtotal
	apply := func(d value.Discount, off value.Money) {
		if !off.Amount.IsPositive() {
			return
		}
		if off.Amount.GreaterThan(running.Amount) {
			off = running
		}
		running.Amount = running.Amount.Sub(off.Amount)
		q.Discount.Amount = q.Discount.Amount.Add(off.Amount)
		q.Applied = append(q.Applied, d)
	}

	for _, d := range l.Discounts {
		switch d.Kind {
		case value.DiscountQuantity:
			qd := d.Quantity
			if qd.RefQuantity != "" && qd.RefQuantity != q.BinID {
				continue
			}
			if meets(qty, qd.Threshold) {
				apply(d, qd.Value)
			}
		case value.DiscountMass:
			if qty.Unit.IsMass() && meets(qty, d.Mass.Threshold) {
				apply(d, d.Mass.Value)
			}
		}
	}
	for _, d := range l.Discounts {
		if d.Kind != value.DiscountSubtotal {
			continue
		}
		sd := d.Subtotal
		if subtotal.Amount.LessThan(sd.Threshold.Amount) {
			continue
		}
		off, err := sd.Value.Apply(subtotal)
		if err != nil {
			return Quote{}, fmt.Errorf("trade: %s discount: %w", d.Kind, err)
		}
		apply(d, off)
	}
	for _, d := range l.Discounts {
		if d.Kind != value.DiscountTotal {
			continue
		}
		td := d.Total
		if running.Amount.LessThan(td.TotalMin.Amount) {
			continue
		}
		apply(d, td.Value.OfQuantized(running))
	}

	q.Total = running.Quantize()
	q.Discount = q.Discount.Quantize()
	return q, nil
}

// checkDiscountCurrencies rejects any discount whose money is not in the
// listing's price currency.
func checkDiscountCurrencies(discounts []value.Discount, currency value.Currency) error {
	for _, d := range discounts {
		var amounts []value.Money
		switch d.Kind {
		case value.DiscountQuantity:
			amounts = append(amounts, d.Quantity.Value)
		case value.DiscountMass:
			amounts = append(amounts, d.Mass.Value)
		case value.DiscountSubtotal:
			amounts = append(amounts, d.Subtotal.Threshold)
			if d.Subtotal.Value.Kind == value.DiscountValueMoney {
				amounts = append(amounts, d.Subtotal.Value.Money)
			}
		case value.DiscountTotal:
			amounts = append(amounts, d.Total.TotalMin)
		}
		for _, m := range amounts {
			if m.Currency != currency {
				return fmt.Errorf("trade: %s discount: %w: %s vs %s", d.Kind, value.ErrCurrencyMismatch, m.Currency, currency)
			}
		}
	}
	return nil
}

func priceFor(prices []value.QuantityPrice, qty value.Quantity) (value.QuantityPrice, value.Money, error) {
	for _, p := range prices {
		if p.Quantity.Unit == qty.Unit {
			cost, err := p.TryCostFor(qty)
			if err != nil {
				return value.QuantityPrice{}, value.Money{}, err
			}
			return p, cost, nil
		}
	}
	for _, p := range prices {
		if cost, err := p.TryCostForAmountIn(qty); err == nil {
			return p, cost, nil
		}
	}
	return value.QuantityPrice{}, value.Money{}, fmt.Errorf("%w: %s", ErrNoBinPrice, qty.Unit)
}

// meets reports whether have is at least threshold, converting mass units.
func meets(have, threshold value.Quantity) bool {
	amount := have.Amount
	if have.Unit != threshold.Unit {
		converted, err := value.ConvertAmount(have.Amount, have.Unit, threshold.Unit)
		if err != nil {
			return false
		}
		amount = converted
	}
	return amount.GreaterThanOrEqual(threshold.Amount)
}
