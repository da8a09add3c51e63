package value

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Currency is an upper-case three-letter ISO-4217 style code.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	CAD Currency = "CAD"
	AUD Currency = "AUD"
)

// ParseCurrency accepts exactly three ASCII letters in any case and returns
// the upper-cased code.
func ParseCurrency(s string) (Currency, error) {
	s = strings.TrimSpace(s)
	if len(s) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	for i := 0; i < 3; i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
		}
	}
	return Currency(strings.ToUpper(s)), nil
}

func (c Currency) String() string { return string(c) }

// MinorUnitExponent returns the number of decimal places of the currency's
// minor unit.
func (c Currency) MinorUnitExponent() int32 {
	switch c {
	case "JPY", "KRW", "VND":
		return 0
	case "BHD", "IQD", "JOD", "KWD", "LYD", "OMR", "TND":
		return 3
	default:
		return 2
	}
}

func (c Currency) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

func (c *Currency) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCurrency(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
