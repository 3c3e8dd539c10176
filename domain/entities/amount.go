package entities

import (
	"fmt"
	"math"
	"strings"

	"ledgerbot/domain"

	"github.com/shopspring/decimal"
)

const (
	// AmountScale is the number of fractional digits of the token kept by the ledger.
	AmountScale = 6

	// MinorUnitsPerToken is how many minor units make up one whole token.
	MinorUnitsPerToken int64 = 1_000_000
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// Amount is a token quantity in minor units (1e-6 of a token).
type Amount int64

// ParseAmount parses a decimal string such as "12.5" into minor units.
// Values with more than six fractional digits are rejected, never rounded.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal number", domain.ErrInvalidAmount, s)
	}
	return AmountFromDecimal(d)
}

// AmountFromDecimal converts a decimal token quantity to minor units.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	scaled := d.Shift(AmountScale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d fractional digits", domain.ErrInvalidAmount, d.String(), AmountScale)
	}
	if scaled.Abs().GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %s is out of range", domain.ErrInvalidAmount, d.String())
	}
	return Amount(scaled.IntPart()), nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// TokensToAmount converts whole tokens to minor units.
func TokensToAmount(tokens int64) Amount {
	return Amount(tokens * MinorUnitsPerToken)
}

// Decimal returns the amount as a decimal token quantity.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -AmountScale)
}

// String formats the amount with all six fractional digits, e.g. "40.000000".
func (a Amount) String() string {
	return a.Decimal().StringFixed(AmountScale)
}

// IsPositive reports whether the amount is greater than zero
func (a Amount) IsPositive() bool {
	return a > 0
}

// Abs returns the absolute value of the amount
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// ValidatePositive returns ErrInvalidAmount unless the amount is greater than zero
func (a Amount) ValidatePositive() error {
	if a <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", domain.ErrInvalidAmount, a)
	}
	return nil
}

// Add returns a+b, or ErrInvalidAmount when the sum leaves the int64 range
func (a Amount) Add(b Amount) (Amount, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: %s + %s is out of range", domain.ErrInvalidAmount, a, b)
	}
	return a + b, nil
}
