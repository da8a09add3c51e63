package value

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(s string) Money { return NewMoney(MustDecimal(s), USD) }

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("usd")
	require.NoError(t, err)
	assert.Equal(t, USD, c)

	for _, bad := range []string{"", "US", "USDT", "U$D", "12A"} {
		_, err := ParseCurrency(bad)
		assert.ErrorIs(t, err, ErrInvalidCurrency, bad)
	}
}

func TestMinorUnitExponent(t *testing.T) {
	assert.Equal(t, int32(2), USD.MinorUnitExponent())
	assert.Equal(t, int32(0), JPY.MinorUnitExponent())
	assert.Equal(t, int32(3), Currency("KWD").MinorUnitExponent())
}

func TestMoneyQuantizeRoundsHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"-1.005", "-1.01"},
		{"2.5", "2.5"},
	}
	for _, tt := range tests {
		got := usd(tt.in).Quantize()
		assert.True(t, MustDecimal(tt.want).Equal(got.Amount), "%s -> %s", tt.in, got.Amount)
	}

	yen := NewMoney(MustDecimal("2.5"), JPY).Quantize()
	assert.Equal(t, "3", FormatDecimal(yen.Amount))
}

func TestMoneyToMinorUnitsExact(t *testing.T) {
	v, err := usd("12.34").ToMinorUnitsExact()
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), v)

	v, err = usd("0.125").ToMinorUnitsExact()
	require.NoError(t, err)
	assert.Equal(t, uint64(13), v)

	_, err = usd("-1").ToMinorUnitsExact()
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = usd("184467440737095516.16").ToMinorUnitsExact()
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = usd("42949672.96").ToMinorUnitsExact32()
	assert.ErrorIs(t, err, ErrAmountOverflow)

	v32, err := usd("42949672.95").ToMinorUnitsExact32()
	require.NoError(t, err)
	assert.Equal(t, uint32(4294967295), v32)
}

func TestMoneyToMinorUnitsRounded(t *testing.T) {
	v, err := usd("1.239").ToMinorUnitsRounded(RoundTowardZero)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), v)

	v, err = usd("1.231").ToMinorUnitsRounded(RoundAwayFromZero)
	require.NoError(t, err)
	assert.Equal(t, uint64(124), v)

	v, err = usd("1.225").ToMinorUnitsRounded(RoundHalfEven)
	require.NoError(t, err)
	assert.Equal(t, uint64(122), v)
}

func TestMoneyQuantizeIsIdempotentForMinorUnits(t *testing.T) {
	for _, s := range []string{"0", "0.01", "19.99", "1000000.5"} {
		m := usd(s)
		a, err := m.ToMinorUnitsExact()
		require.NoError(t, err)
		b, err := m.Quantize().ToMinorUnitsExact()
		require.NoError(t, err)
		assert.Equal(t, a, b, s)
	}
}

func TestMoneyFromMinorUnits(t *testing.T) {
	m := MoneyFromMinorUnits(1999, USD)
	assert.Equal(t, "19.99", FormatDecimal(m.Amount))

	m = MoneyFromMinorUnits(1999, JPY)
	assert.Equal(t, "1999", FormatDecimal(m.Amount))
}

func TestMoneyArithmetic(t *testing.T) {
	sum, err := usd("1.10").Add(usd("2.20"))
	require.NoError(t, err)
	assert.True(t, MustDecimal("3.3").Equal(sum.Amount))

	diff, err := usd("5").Sub(usd("7.5"))
	require.NoError(t, err)
	assert.True(t, MustDecimal("-2.5").Equal(diff.Amount))
	assert.ErrorIs(t, diff.EnsureNonNegative(), ErrNegativeAmount)

	_, err = usd("1").Add(NewMoney(decimal.NewFromInt(1), EUR))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = usd("1").Sub(NewMoney(decimal.NewFromInt(1), EUR))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd("1").Div(decimal.Zero)
	assert.ErrorIs(t, err, ErrDivisionByZero)

	assert.Equal(t, "7.5 USD", usd("2.5").Mul(decimal.NewFromInt(3)).String())
}

func TestPercent(t *testing.T) {
	p, err := ParsePercent(" 12.5% ")
	require.NoError(t, err)
	assert.Equal(t, "12.5%", p.String())
	assert.True(t, MustDecimal("0.125").Equal(p.Ratio()))

	off := p.OfQuantized(usd("9.99"))
	assert.Equal(t, "1.25", FormatDecimal(off.Amount))

	assert.Equal(t, "50%", PercentFromRatio(MustDecimal("0.5")).String())

	_, err = ParsePercent("ten")
	assert.ErrorIs(t, err, ErrInvalidNumber)
}
