// Package fee computes platform fees. Everything here is pure: amounts go in
// as minor units of a currency and come out the same way.
package fee

import (
	"fmt"

	"github.com/pointify/ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Policy is a percentage fee with an optional flat minimum, both expressed in
// the minor unit of Currency.
type Policy struct {
	Rate     decimal.Decimal
	Minimum  int64
	Currency domain.Currency
}

// Result is the split of a gross amount into fee and net.
type Result struct {
	Gross    int64
	Fee      int64
	Net      int64
	Currency domain.Currency
}

// Zero is the policy of internal point-to-point transfers.
var Zero = Policy{Rate: decimal.Zero, Currency: domain.CurrencyPoints}

// Apply returns max(ceil(gross*rate), minimum) as the fee. Net may be zero or
// negative when the minimum swallows the amount; callers decide whether that
// is acceptable.
func Apply(gross int64, p Policy) Result {
	if gross <= 0 {
		return Result{Gross: gross, Net: gross, Currency: p.Currency}
	}
	f := decimal.NewFromInt(gross).Mul(p.Rate).Ceil().IntPart()
	if f < p.Minimum {
		f = p.Minimum
	}
	return Result{Gross: gross, Fee: f, Net: gross - f, Currency: p.Currency}
}

// Table groups the policies per operation category.
type Table struct {
	Transaction Policy
	SwapUSDT    Policy
	SwapBTC     Policy
}

// DefaultTable: 3% with a R$0.50 floor on external rails, 1% on USDT swaps
// and 2% on BTC swaps.
func DefaultTable() Table {
	return Table{
		Transaction: Policy{Rate: decimal.RequireFromString("0.03"), Minimum: 50, Currency: domain.CurrencyBRL},
		SwapUSDT:    Policy{Rate: decimal.RequireFromString("0.01"), Currency: domain.CurrencyUSDT},
		SwapBTC:     Policy{Rate: decimal.RequireFromString("0.02"), Currency: domain.CurrencyBTC},
	}
}

// ForSwap picks the swap policy of the target currency.
func (t Table) ForSwap(target domain.Currency) (Policy, error) {
	switch target {
	case domain.CurrencyUSDT:
		return t.SwapUSDT, nil
	case domain.CurrencyBTC:
		return t.SwapBTC, nil
	}
	return Policy{}, fmt.Errorf("%w: cannot swap to %q", domain.ErrUnsupportedCurrency, target)
}

// Validate rejects negative or out-of-range rates.
func (t Table) Validate() error {
	for name, p := range map[string]Policy{"transaction": t.Transaction, "swap_usdt": t.SwapUSDT, "swap_btc": t.SwapBTC} {
		if p.Rate.IsNegative() || p.Rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("fee %s: rate %s out of range [0,1)", name, p.Rate)
		}
		if p.Minimum < 0 {
			return fmt.Errorf("fee %s: negative minimum %d", name, p.Minimum)
		}
	}
	return nil
}

// CalcTransactionFee is the transaction fee of a BRL amount given in reais,
// e.g. 10.00 -> 0.50 and 100.00 -> 3.00.
func CalcTransactionFee(amount decimal.Decimal) decimal.Decimal {
	return ApplyDecimal(amount, DefaultTable().Transaction)
}

// ApplyDecimal runs Apply on a major-unit amount and returns the fee in major
// units. Fractions of a minor unit in amount are rounded up.
func ApplyDecimal(amount decimal.Decimal, p Policy) decimal.Decimal {
	scale := p.Currency.Scale()
	gross := amount.Shift(scale).Ceil().IntPart()
	return decimal.New(Apply(gross, p).Fee, -scale)
}
