package value

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent is a percentage value; 12.5 means 12.5%.
type Percent struct {
	Value decimal.Decimal `json:"value"`
}

func NewPercent(v decimal.Decimal) Percent { return Percent{Value: v} }

// PercentFromRatio converts a 0..1 ratio to a percentage.
func PercentFromRatio(ratio decimal.Decimal) Percent {
	return Percent{Value: ratio.Mul(hundred)}
}

// ParsePercent accepts "12.5" or "12.5%".
func ParsePercent(s string) (Percent, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	d, err := ParseDecimal(s)
	if err != nil {
		return Percent{}, err
	}
	return Percent{Value: d}, nil
}

func (p Percent) Ratio() decimal.Decimal { return p.Value.Div(hundred) }

func (p Percent) Of(base Money) Money { return base.Mul(p.Ratio()) }

func (p Percent) OfQuantized(base Money) Money { return p.Of(base).Quantize() }

func (p Percent) String() string { return fmt.Sprintf("%s%%", FormatDecimal(p.Value)) }
