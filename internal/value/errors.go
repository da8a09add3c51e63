package value

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrInvalidUnit         = errors.New("invalid unit")
	ErrInvalidNumber       = errors.New("invalid number")
	ErrNegativeAmount      = errors.New("amount must be >= 0")
	ErrNotWholeMinorUnits  = errors.New("money not a whole number of minor units")
	ErrAmountOverflow      = errors.New("money minor-unit conversion overflow")
	ErrCurrencyMismatch    = errors.New("money currency mismatch")
	ErrUnitMismatch        = errors.New("quantity unit mismatch")
	ErrPerQuantityZero     = errors.New("price reference quantity is zero")
	ErrNonConvertibleUnits = errors.New("units are not convertible")
	ErrDivisionByZero      = errors.New("division by zero")
)

// UnitMismatchError reports two units that were expected to match.
type UnitMismatchError struct {
	Have Unit
	Want Unit
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("unit mismatch: have %s, want %s", e.Have, e.Want)
}

func (e *UnitMismatchError) Is(target error) bool { return target == ErrUnitMismatch }

// NonConvertibleUnitsError reports a conversion between units of different
// dimensions.
type NonConvertibleUnitsError struct {
	From Unit
	To   Unit
}

func (e *NonConvertibleUnitsError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s", e.From, e.To)
}

func (e *NonConvertibleUnitsError) Is(target error) bool { return target == ErrNonConvertibleUnits }
