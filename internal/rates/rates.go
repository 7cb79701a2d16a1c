// Package rates supplies the exchange rates consumed by deposit settlement,
// swaps and withdrawals. Rates are external inputs, never ledger policy.
package rates

import (
	"context"
	"fmt"

	"github.com/pointify/ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Rates are prices relative to one point.
type Rates struct {
	PointsPerBRL decimal.Decimal
	USDTPerPoint decimal.Decimal
	BTCPerPoint  decimal.Decimal
}

// Source returns the rates in effect right now.
type Source interface {
	Current(ctx context.Context) (Rates, error)
}

func (r Rates) Validate() error {
	if !r.PointsPerBRL.IsPositive() {
		return fmt.Errorf("points_per_brl must be positive, got %s", r.PointsPerBRL)
	}
	if !r.USDTPerPoint.IsPositive() {
		return fmt.Errorf("usdt_per_point must be positive, got %s", r.USDTPerPoint)
	}
	if !r.BTCPerPoint.IsPositive() {
		return fmt.Errorf("btc_per_point must be positive, got %s", r.BTCPerPoint)
	}
	return nil
}

// PointsForBRL converts centavos to whole points, rounding down so a deposit
// is never over-credited.
func (r Rates) PointsForBRL(cents int64) int64 {
	return decimal.New(cents, -domain.CurrencyBRL.Scale()).Mul(r.PointsPerBRL).Floor().IntPart()
}

// BRLForPoints converts points to centavos, rounding down.
func (r Rates) BRLForPoints(points int64) int64 {
	return decimal.NewFromInt(points).
		DivRound(r.PointsPerBRL, 16).
		Shift(domain.CurrencyBRL.Scale()).
		Floor().
		IntPart()
}

// BRLCostOfPoints is the smallest centavo amount whose deposit credits at
// least points.
func (r Rates) BRLCostOfPoints(points int64) int64 {
	cents := decimal.NewFromInt(points).
		DivRound(r.PointsPerBRL, 16).
		Shift(domain.CurrencyBRL.Scale()).
		Ceil().
		IntPart()
	for r.PointsForBRL(cents) < points {
		cents++
	}
	return cents
}

// CryptoForPoints converts points to minor units of target, rounding down.
func (r Rates) CryptoForPoints(points int64, target domain.Currency) (int64, error) {
	var price decimal.Decimal
	switch target {
	case domain.CurrencyUSDT:
		price = r.USDTPerPoint
	case domain.CurrencyBTC:
		price = r.BTCPerPoint
	default:
		return 0, fmt.Errorf("%w: no price for %q", domain.ErrUnsupportedCurrency, target)
	}
	return decimal.NewFromInt(points).Mul(price).Shift(target.Scale()).Floor().IntPart(), nil
}

// Static serves a fixed set of rates, usually loaded from configuration.
type Static struct {
	rates Rates
}

func NewStatic(r Rates) *Static {
	return &Static{rates: r}
}

func (s *Static) Current(context.Context) (Rates, error) {
	return s.rates, nil
}
