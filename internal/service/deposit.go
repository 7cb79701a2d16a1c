package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/store"
	"go.uber.org/zap"
)

// DepositResult is the outcome of a settlement. Duplicate is set when the
// charge had already been settled; Transaction is then the original row.
type DepositResult struct {
	Transaction *domain.Transaction `json:"transaction"`
	Points      int64               `json:"points"`
	Duplicate   bool                `json:"duplicate"`
}

// SettleDeposit credits a confirmed PIX charge of grossBRL centavos. A charge
// id is settled at most once; repeats succeed without crediting again.
func (s *LedgerService) SettleDeposit(ctx context.Context, accountID, grossBRL int64, chargeID string) (res *DepositResult, err error) {
	chargeID = strings.TrimSpace(chargeID)
	defer func() {
		fields := []zap.Field{zap.Int64("account_id", accountID), zap.String("charge_id", chargeID)}
		if err == nil && res.Duplicate {
			ledgerOpsTotal.WithLabelValues(opDeposit, "duplicate").Inc()
			s.logger.Info("deposit already settled", fields...)
			return
		}
		s.record(opDeposit, err, fields...)
	}()

	if grossBRL <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if chargeID == "" {
		return nil, domain.ErrChargeIDRequired
	}

	r, err := s.currentRates(ctx)
	if err != nil {
		return nil, err
	}
	points := r.PointsForBRL(grossBRL)
	if points <= 0 {
		return nil, fmt.Errorf("%w: %d centavos buy no points", domain.ErrInvalidAmount, grossBRL)
	}

	err = s.execute(ctx, opDeposit, func(ctx context.Context, tx store.Tx) error {
		res = nil

		// 1. Idempotency check, before touching the account: a repeated
		// charge answers with its first settlement whatever account it names.
		prior, err := priorDeposit(ctx, tx, chargeID)
		if err != nil || prior != nil {
			res = prior
			return err
		}

		// 2. Lock the account so concurrent settlements queue up
		if _, err := tx.LockAccounts(ctx, accountID); err != nil {
			return err
		}

		// 3. Credit and record
		if err := tx.AddPoints(ctx, accountID, points); err != nil {
			return err
		}
		row := domain.NewTransaction(accountID, domain.TxDeposit, domain.StatusCompleted, domain.CurrencyBRL, s.now().UTC())
		row.Amount = points
		row.Gross, row.Net = grossBRL, grossBRL
		row.ExternalRef = &chargeID
		row.Description = "PIX deposit"
		if err := tx.InsertTransactions(ctx, row); err != nil {
			return err
		}
		res = &DepositResult{Transaction: row, Points: points}
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateExternalReference) {
		// Another settlement of the same charge committed first.
		err = s.execute(ctx, opDeposit, func(ctx context.Context, tx store.Tx) error {
			prior, err := priorDeposit(ctx, tx, chargeID)
			if err != nil {
				return err
			}
			if prior == nil {
				return fmt.Errorf("%w: charge %s reported duplicate but not found", domain.ErrConflict, chargeID)
			}
			res = prior
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// priorDeposit returns the recorded settlement of chargeID, or nil when the
// charge is new. A reference held by any other kind of row is a conflict.
func priorDeposit(ctx context.Context, tx store.Tx, chargeID string) (*DepositResult, error) {
	prior, err := tx.FindByExternalRef(ctx, chargeID)
	if err != nil || prior == nil {
		return nil, err
	}
	if prior.Type != domain.TxDeposit {
		return nil, fmt.Errorf("%w: %s is a %s row", domain.ErrChargeIDConflict, chargeID, prior.Type)
	}
	return &DepositResult{Transaction: prior, Points: prior.Amount, Duplicate: true}, nil
}
