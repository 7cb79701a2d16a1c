package service

import (
	"context"
	"fmt"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/fee"
	"github.com/pointify/ledger/internal/store"
	"go.uber.org/zap"
)

// Withdraw debits points for a BRL payout to one of the caller's WITHDRAWAL
// pix keys. The row stays PENDING until the payout provider confirms it.
func (s *LedgerService) Withdraw(ctx context.Context, accountID, points int64, pixKey string) (row *domain.Transaction, err error) {
	pixKey = domain.NormalizeKey(pixKey)
	defer func() {
		s.record(opWithdraw, err, zap.Int64("account_id", accountID), zap.Int64("points", points))
	}()

	if points <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if pixKey == "" {
		return nil, fmt.Errorf("%w: key is empty", domain.ErrInvalidPixKey)
	}
	r, err := s.currentRates(ctx)
	if err != nil {
		return nil, err
	}
	split := fee.Apply(r.BRLForPoints(points), s.fees.Transaction)
	if split.Net <= 0 {
		return nil, fmt.Errorf("%w: %d centavos, fee %d", domain.ErrAmountBelowFee, split.Gross, split.Fee)
	}

	err = s.execute(ctx, opWithdraw, func(ctx context.Context, tx store.Tx) error {
		row = nil
		now := s.now().UTC()

		key, err := tx.FindPixKey(ctx, pixKey, domain.PixKeyWithdrawal)
		if err != nil {
			return err
		}
		if key.AccountID != accountID {
			return fmt.Errorf("%w: %s", domain.ErrPixKeyNotFound, pixKey)
		}
		if key.Kind == domain.PixKeyWallet {
			return fmt.Errorf("%w: wallet keys cannot receive BRL payouts", domain.ErrInvalidPixKey)
		}

		if err := s.debitPoints(ctx, tx, accountID, points, now); err != nil {
			return err
		}

		out := domain.NewTransaction(accountID, domain.TxWithdrawal, domain.StatusPending, split.Currency, now)
		out.Amount = -points
		out.Gross, out.Fee, out.Net = split.Gross, split.Fee, split.Net
		out.Description = "PIX withdrawal to " + key.Key
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
