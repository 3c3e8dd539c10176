package services

import (
	"context"
	"fmt"

	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/interfaces"

	"github.com/shopspring/decimal"
)

// FineCalculator prices USD-denominated fines and bail in tokens
type FineCalculator struct {
	rates interfaces.RateProvider
}

// NewFineCalculator creates a new FineCalculator
func NewFineCalculator(rates interfaces.RateProvider) *FineCalculator {
	return &FineCalculator{rates: rates}
}

// TokensForUSD converts usd to a token amount at the current rate, rounding up to the minor unit
func (c *FineCalculator) TokensForUSD(ctx context.Context, usd decimal.Decimal) (entities.Amount, error) {
	if !usd.IsPositive() {
		return 0, fmt.Errorf("usd amount %s: %w", usd, domain.ErrInvalidAmount)
	}

	rate, err := c.rates.GetRate(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get token rate: %w", err)
	}
	if !rate.IsPositive() {
		return 0, fmt.Errorf("token rate %s is not positive", rate)
	}

	tokens := usd.DivRound(rate, 18).Shift(entities.AmountScale).Ceil().Shift(-entities.AmountScale)
	return entities.AmountFromDecimal(tokens)
}
