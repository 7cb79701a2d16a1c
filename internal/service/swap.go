package service

import (
	"context"
	"fmt"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/fee"
	"github.com/pointify/ledger/internal/store"
	"go.uber.org/zap"
)

// Swap converts points into USDT or BTC at the current price. The swap fee is
// taken in the target currency and the net amount is credited.
func (s *LedgerService) Swap(ctx context.Context, accountID, points int64, target domain.Currency) (row *domain.Transaction, err error) {
	defer func() {
		s.record(opSwap, err,
			zap.Int64("account_id", accountID), zap.Int64("points", points), zap.String("target", string(target)))
	}()

	if points <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	policy, err := s.fees.ForSwap(target)
	if err != nil {
		return nil, err
	}
	r, err := s.currentRates(ctx)
	if err != nil {
		return nil, err
	}
	gross, err := r.CryptoForPoints(points, target)
	if err != nil {
		return nil, err
	}
	split := fee.Apply(gross, policy)
	if split.Net <= 0 {
		return nil, fmt.Errorf("%w: %d points convert to %d %s", domain.ErrAmountBelowFee, points, gross, target)
	}

	err = s.execute(ctx, opSwap, func(ctx context.Context, tx store.Tx) error {
		row = nil
		now := s.now().UTC()

		if err := s.debitPoints(ctx, tx, accountID, points, now); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, accountID, target, split.Net); err != nil {
			return err
		}

		out := domain.NewTransaction(accountID, domain.TxSwap, domain.StatusCompleted, target, now)
		out.Amount = -points
		out.Gross, out.Fee, out.Net = split.Gross, split.Fee, split.Net
		out.Description = fmt.Sprintf("Swap %d points to %s", points, target)
		if err := tx.InsertTransactions(ctx, out); err != nil {
			return err
		}
		row = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}
