package value

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit is a measurement unit identified by its canonical short code.
type Unit string

const (
	UnitEach     Unit = "each"
	UnitMassKg   Unit = "kg"
	UnitMassG    Unit = "g"
	UnitMassOz   Unit = "oz"
	UnitMassLb   Unit = "lb"
	UnitVolumeL  Unit = "l"
	UnitVolumeMl Unit = "ml"
)

// Dimension groups units that can be converted into one another.
type Dimension string

const (
	DimensionCount  Dimension = "count"
	DimensionMass   Dimension = "mass"
	DimensionVolume Dimension = "volume"
)

var unitAliases = map[string]Unit{
	"each": UnitEach, "ea": UnitEach, "count": UnitEach,
	"kg": UnitMassKg, "kilogram": UnitMassKg, "kilograms": UnitMassKg,
	"g": UnitMassG, "gram": UnitMassG, "grams": UnitMassG,
	"oz": UnitMassOz, "ounce": UnitMassOz, "ounces": UnitMassOz,
	"lb": UnitMassLb, "pound": UnitMassLb, "pounds": UnitMassLb,
	"l": UnitVolumeL, "liter": UnitVolumeL, "litre": UnitVolumeL, "liters": UnitVolumeL, "litres": UnitVolumeL,
	"ml": UnitVolumeMl, "milliliter": UnitVolumeMl, "millilitre": UnitVolumeMl,
	"milliliters": UnitVolumeMl, "millilitres": UnitVolumeMl,
}

var (
	gramsPerUnit = map[Unit]decimal.Decimal{
		UnitMassG:  decimal.NewFromInt(1),
		UnitMassKg: decimal.NewFromInt(1000),
		UnitMassOz: decimal.RequireFromString("28.349523125"),
		UnitMassLb: decimal.RequireFromString("453.59237"),
	}
	millilitersPerUnit = map[Unit]decimal.Decimal{
		UnitVolumeMl: decimal.NewFromInt(1),
		UnitVolumeL:  decimal.NewFromInt(1000),
	}
)

// ParseUnit resolves a unit code or alias, case-insensitively.
func ParseUnit(s string) (Unit, error) {
	u, ok := unitAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
	return u, nil
}

func (u Unit) Code() string   { return string(u) }
func (u Unit) String() string { return string(u) }

func (u Unit) Dimension() Dimension {
	switch u {
	case UnitMassKg, UnitMassG, UnitMassOz, UnitMassLb:
		return DimensionMass
	case UnitVolumeL, UnitVolumeMl:
		return DimensionVolume
	default:
		return DimensionCount
	}
}

// Canonical returns the reference unit of u's dimension: each, g or ml.
func (u Unit) Canonical() Unit {
	switch u.Dimension() {
	case DimensionMass:
		return UnitMassG
	case DimensionVolume:
		return UnitVolumeMl
	default:
		return UnitEach
	}
}

func (u Unit) IsMass() bool   { return u.Dimension() == DimensionMass }
func (u Unit) IsVolume() bool { return u.Dimension() == DimensionVolume }
func (u Unit) IsCount() bool  { return u == UnitEach }

// ConvertAmount converts amount from one unit to another of the same
// dimension.
func ConvertAmount(amount decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	if from.Dimension() != to.Dimension() {
		return decimal.Zero, &NonConvertibleUnitsError{From: from, To: to}
	}
	if from == to {
		return amount, nil
	}
	switch from.Dimension() {
	case DimensionMass:
		return amount.Mul(gramsPerUnit[from]).Div(gramsPerUnit[to]), nil
	case DimensionVolume:
		return amount.Mul(millilitersPerUnit[from]).Div(millilitersPerUnit[to]), nil
	default:
		return amount, nil
	}
}

func (u Unit) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(u))
}

func (u *Unit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseUnit(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
