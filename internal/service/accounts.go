package service

import (
	"context"
	"strings"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// OpenAccount provisions an empty account for a user created by the identity
// provider.
func (s *LedgerService) OpenAccount(ctx context.Context, email, name string, limits domain.Limits) (acc *domain.Account, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	defer func() { s.record(opOpenAccount, err, zap.String("email", email)) }()

	return s.store.CreateAccount(ctx, email, strings.TrimSpace(name), limits)
}

// RegisterPixKey validates key and attaches it to the account.
func (s *LedgerService) RegisterPixKey(ctx context.Context, accountID int64, key domain.PixKey) (out *domain.PixKey, err error) {
	defer func() { s.record(opPixKey, err, zap.Int64("account_id", accountID)) }()

	key.AccountID = accountID
	if err = key.Validate(); err != nil {
		return nil, err
	}

	err = s.execute(ctx, opPixKey, func(ctx context.Context, tx store.Tx) error {
		out = nil
		if _, err := tx.LockAccounts(ctx, accountID); err != nil {
			return err
		}
		k := key
		if err := tx.InsertPixKey(ctx, &k); err != nil {
			return err
		}
		out = &k
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerService) GetBalance(ctx context.Context, accountID int64) (*domain.Account, error) {
	return s.store.GetAccount(ctx, accountID)
}

// RecentTransactions returns the account's newest rows, newest first.
func (s *LedgerService) RecentTransactions(ctx context.Context, accountID int64, limit int) ([]domain.Transaction, error) {
	return s.store.RecentTransactions(ctx, accountID, clampLimit(limit))
}

// RecentAll is the admin view of the newest rows across all accounts.
func (s *LedgerService) RecentAll(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return s.store.RecentAll(ctx, clampLimit(limit))
}

func (s *LedgerService) Summary(ctx context.Context, window domain.Window) (domain.Summary, error) {
	if window != domain.WindowToday && window != domain.WindowAll {
		return domain.Summary{}, domain.ErrInvalidWindow
	}
	sum, err := s.store.Summary(ctx, window.Since(s.now()))
	if err != nil {
		return domain.Summary{}, err
	}
	sum.Window = window
	return sum, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultHistoryLimit
	case n > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return n
}
