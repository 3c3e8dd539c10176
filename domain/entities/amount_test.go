package entities

import (
	"math"
	"testing"

	"ledgerbot/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Amount
		wantErr bool
	}{
		{name: "whole tokens", input: "100", want: 100_000_000},
		{name: "six fractional digits", input: "0.000001", want: 1},
		{name: "mixed", input: "12.5", want: 12_500_000},
		{name: "surrounding whitespace", input: " 40.000000 ", want: 40_000_000},
		{name: "negative", input: "-5", want: -5_000_000},
		{name: "zero", input: "0", want: 0},
		{name: "seven fractional digits rejected", input: "0.0000001", wantErr: true},
		{name: "trailing zeros beyond scale are fine", input: "1.0000000", want: 1_000_000},
		{name: "not a number", input: "ten", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "out of range", input: "99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmount_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "40.000000", TokensToAmount(40).String())
	assert.Equal(t, "0.000001", Amount(1).String())
	assert.Equal(t, "-5.250000", Amount(-5_250_000).String())
}

func TestAmount_ValidatePositive(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Amount(1).ValidatePositive())
	assert.ErrorIs(t, Amount(0).ValidatePositive(), domain.ErrInvalidAmount)
	assert.ErrorIs(t, Amount(-1).ValidatePositive(), domain.ErrInvalidAmount)
}

func TestAmount_DecimalRoundTrip(t *testing.T) {
	t.Parallel()

	a := MustParseAmount("105.123456")
	back, err := AmountFromDecimal(a.Decimal())
	require.NoError(t, err)
	assert.Equal(t, a, back)
	assert.True(t, a.Decimal().Equal(decimal.RequireFromString("105.123456")))
}

func TestAmount_Add(t *testing.T) {
	t.Parallel()

	sum, err := Amount(5).Add(-7)
	require.NoError(t, err)
	assert.Equal(t, Amount(-2), sum)

	_, err = Amount(1).Add(math.MaxInt64)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = Amount(-2).Add(-math.MaxInt64)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	sum, err = Amount(0).Add(math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, Amount(math.MaxInt64), sum)
}
