// Package store defines the persistence contract of the ledger and its
// PostgreSQL implementation.
package store

import (
	"context"
	"time"

	"github.com/pointify/ledger/internal/domain"
)

// Store runs units of work and serves read-only projections.
type Store interface {
	// WithinTx runs fn in one atomic scope. If fn returns an error nothing it
	// did is visible afterwards and the error is returned unchanged.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateAccount(ctx context.Context, email, name string, limits domain.Limits) (*domain.Account, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	RecentTransactions(ctx context.Context, accountID int64, limit int) ([]domain.Transaction, error)
	RecentAll(ctx context.Context, limit int) ([]domain.Transaction, error)
	// Summary aggregates rows created at or after since. The zero time means
	// all rows.
	Summary(ctx context.Context, since time.Time) (domain.Summary, error)
}

// Tx is the view of the store inside a unit of work.
type Tx interface {
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindPixKey(ctx context.Context, key string, category domain.PixKeyCategory) (*domain.PixKey, error)

	// LockAccounts locks the rows in ascending id order and returns their
	// current state. Any missing id fails with domain.ErrAccountNotFound.
	LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error)

	// AddPoints and AddBalance fail with domain.ErrInsufficientBalance rather
	// than leave a negative balance.
	AddPoints(ctx context.Context, accountID, delta int64) error
	AddBalance(ctx context.Context, accountID int64, currency domain.Currency, delta int64) error

	// InsertTransactions fails with domain.ErrDuplicateExternalReference when
	// a row's external reference already exists.
	InsertTransactions(ctx context.Context, txs ...*domain.Transaction) error
	FindByExternalRef(ctx context.Context, ref string) (*domain.Transaction, error)
	// OutgoingSince sums the points that left the account through non-failed
	// outgoing rows created at or after since.
	OutgoingSince(ctx context.Context, accountID int64, since time.Time) (int64, error)

	InsertPixKey(ctx context.Context, key *domain.PixKey) error
}
