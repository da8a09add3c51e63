package geo

import (
	"math"
	"strconv"
	"strings"
)

// FormatCoordinate renders v in the shortest decimal form that round-trips,
// without exponent notation ("1" rather than "1.0").
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CalculateResolution returns how many decimal digits of v are significant,
// capped at max. Integral values and values with no fractional digits report
// 1.
func CalculateResolution(v float64, max int) int {
	if _, frac := math.Modf(v); frac == 0 {
		return 1
	}
	s := FormatCoordinate(v)
	decimals := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		decimals = len(s) - i - 1
	}
	if decimals > max {
		decimals = max
	}
	if decimals <= 0 {
		return 1
	}
	return decimals
}

// TruncateDecimal floors v to resolution decimal digits.
func TruncateDecimal(v float64, resolution int) float64 {
	m := math.Pow(10, float64(resolution))
	return math.Floor(v*m) / m
}

// DegreeLadder returns v truncated at each resolution from the computed
// resolution down to 1, formatted for tags.
func DegreeLadder(v float64, maxResolution int) []string {
	if maxResolution < 1 {
		maxResolution = 1
	}
	res := CalculateResolution(v, maxResolution)
	out := make([]string, 0, res)
	for r := res; r >= 1; r-- {
		out = append(out, FormatCoordinate(TruncateDecimal(v, r)))
	}
	return out
}
