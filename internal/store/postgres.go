package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pointify/ledger/internal/domain"
)

//go:embed schema.sql
var schema string

// Postgres error codes the ledger reacts to.
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

const accountColumns = `id, email, name, kyc_level, points_balance, usdt_balance, btc_balance,
	daily_limit, monthly_limit, per_tx_limit, created_at`

const transactionColumns = `id::text, account_id, counterparty_id, amount, gross, net, fee,
	currency, type, status, description, external_ref, created_at`

type Postgres struct {
	Db *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates the process-wide pool and checks connectivity.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	config.MaxConns = 50
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{Db: pool}, nil
}

func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Db: pool}
}

func (s *Postgres) Close() {
	s.Db.Close()
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken by
// Tx.LockAccounts serialize writers of the same account.
func (s *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(fmt.Errorf("tx begin failed: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("tx commit failed: %w", err))
	}
	return nil
}

// CreateAccount opens an account with zero balances.
func (s *Postgres) CreateAccount(ctx context.Context, email, name string, limits domain.Limits) (*domain.Account, error) {
	row := s.Db.QueryRow(ctx,
		`INSERT INTO accounts (email, name, daily_limit, monthly_limit, per_tx_limit)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+accountColumns,
		email, name, limits.Daily, limits.Monthly, limits.PerTx,
	)
	acc, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountExists, email)
		}
		return nil, err
	}
	return acc, nil
}

// GetAccount retrieves a single account by ID.
func (s *Postgres) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return scanAccount(s.Db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
}

// RecentTransactions returns the newest rows of one account.
func (s *Postgres) RecentTransactions(ctx context.Context, accountID int64, limit int) ([]domain.Transaction, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE account_id = $1 ORDER BY created_at DESC, id LIMIT $2",
		accountID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return collectTransactions(rows)
}

// RecentAll returns the newest rows across all accounts.
func (s *Postgres) RecentAll(ctx context.Context, limit int) ([]domain.Transaction, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT "+transactionColumns+" FROM transactions ORDER BY created_at DESC, id LIMIT $1",
		limit)
	if err != nil {
		return nil, mapError(err)
	}
	return collectTransactions(rows)
}

func (s *Postgres) Summary(ctx context.Context, since time.Time) (domain.Summary, error) {
	sum := domain.Summary{Revenue: map[domain.Currency]int64{}}

	err := s.Db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN amount < 0 AND status = 'COMPLETED' THEN -amount ELSE 0 END), 0)::BIGINT
		FROM transactions
		WHERE created_at >= $1`, since,
	).Scan(&sum.Count, &sum.VolumePoints)
	if err != nil {
		return sum, mapError(fmt.Errorf("summary volume: %w", err))
	}

	rows, err := s.Db.Query(ctx, `
		SELECT currency, COALESCE(SUM(fee), 0)::BIGINT
		FROM transactions
		WHERE created_at >= $1 AND status <> 'FAILED'
		GROUP BY currency`, since)
	if err != nil {
		return sum, mapError(fmt.Errorf("summary revenue: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var currency string
		var fee int64
		if err := rows.Scan(&currency, &fee); err != nil {
			return sum, mapError(err)
		}
		if fee > 0 {
			sum.Revenue[domain.Currency(currency)] = fee
		}
	}
	return sum, mapError(rows.Err())
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		id      int64
		email   string
		name    string
		kyc     int16
		bal     domain.Balances
		limits  domain.Limits
		created time.Time
	)
	err := row.Scan(&id, &email, &name, &kyc,
		&bal.Points, &bal.USDT, &bal.BTC,
		&limits.Daily, &limits.Monthly, &limits.PerTx, &created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return nil, err
		}
		return nil, mapError(err)
	}
	acc := domain.NewAccount(id, email, name, bal, limits, created)
	acc.KYCLevel = int(kyc)
	return acc, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t                         domain.Transaction
		id, currency, typ, status string
	)
	err := row.Scan(&id, &t.AccountID, &t.CounterpartyID, &t.Amount, &t.Gross, &t.Net, &t.Fee,
		&currency, &typ, &status, &t.Description, &t.ExternalRef, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if t.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	t.Currency = domain.Currency(currency)
	t.Type = domain.TxType(typ)
	t.Status = domain.TxStatus(status)
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, *t)
	}
	return out, mapError(rows.Err())
}

// mapError turns driver errors into ledger errors. Serialization failures and
// deadlocks are retryable conflicts; everything else is an outage.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
