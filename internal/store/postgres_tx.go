package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pointify/ledger/internal/domain"
)

type pgTx struct {
	tx pgx.Tx
}

var _ Tx = (*pgTx)(nil)

func (t *pgTx) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE email = $1", email))
}

func (t *pgTx) FindPixKey(ctx context.Context, key string, category domain.PixKeyCategory) (*domain.PixKey, error) {
	var (
		k       domain.PixKey
		kind    string
		cat     string
		network *string
	)
	err := t.tx.QueryRow(ctx,
		"SELECT id, account_id, key, kind, category, network, created_at FROM pix_keys WHERE key = $1 AND category = $2",
		key, string(category),
	).Scan(&k.ID, &k.AccountID, &k.Key, &kind, &cat, &network, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPixKeyNotFound
		}
		return nil, mapError(fmt.Errorf("pix key lookup failed: %w", err))
	}
	k.Kind = domain.PixKeyKind(kind)
	k.Category = domain.PixKeyCategory(cat)
	if network != nil {
		n := domain.Network(*network)
		k.Network = &n
	}
	return &k, nil
}

// LockAccounts acquires row locks one id at a time in ascending order, so two
// transfers touching the same pair of accounts cannot deadlock.
func (t *pgTx) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	out := make(map[int64]*domain.Account, len(ordered))
	for _, id := range ordered {
		acc, err := scanAccount(t.tx.QueryRow(ctx,
			"SELECT "+accountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return nil, fmt.Errorf("%w: %d", domain.ErrAccountNotFound, id)
			}
			return nil, err
		}
		out[id] = acc
	}
	return out, nil
}

func (t *pgTx) AddPoints(ctx context.Context, accountID, delta int64) error {
	return t.AddBalance(ctx, accountID, domain.CurrencyPoints, delta)
}

func (t *pgTx) AddBalance(ctx context.Context, accountID int64, currency domain.Currency, delta int64) error {
	var column string
	switch currency {
	case domain.CurrencyPoints:
		column = "points_balance"
	case domain.CurrencyUSDT:
		column = "usdt_balance"
	case domain.CurrencyBTC:
		column = "btc_balance"
	default:
		return fmt.Errorf("%w: no balance column for %q", domain.ErrUnsupportedCurrency, currency)
	}

	tag, err := t.tx.Exec(ctx,
		"UPDATE accounts SET "+column+" = "+column+" + $1 WHERE id = $2", delta, accountID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeCheckViolation {
			return fmt.Errorf("%w: account %d", domain.ErrInsufficientBalance, accountID)
		}
		return mapError(fmt.Errorf("balance update failed: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", domain.ErrAccountNotFound, accountID)
	}
	return nil
}

func (t *pgTx) InsertTransactions(ctx context.Context, txs ...*domain.Transaction) error {
	for _, r := range txs {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO transactions (id, account_id, counterparty_id, amount, gross, net, fee,
			                          currency, type, status, description, external_ref, created_at)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			r.ID.String(), r.AccountID, r.CounterpartyID, r.Amount, r.Gross, r.Net, r.Fee,
			string(r.Currency), string(r.Type), string(r.Status), r.Description, r.ExternalRef, r.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateExternalReference, pgErr.Detail)
			}
			return mapError(fmt.Errorf("transaction insert failed: %w", err))
		}
	}
	return nil
}

func (t *pgTx) FindByExternalRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	tx, err := scanTransaction(t.tx.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE external_ref = $1", ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(fmt.Errorf("external ref lookup failed: %w", err))
	}
	return tx, nil
}

func (t *pgTx) OutgoingSince(ctx context.Context, accountID int64, since time.Time) (int64, error) {
	var total int64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(-amount), 0)::BIGINT
		FROM transactions
		WHERE account_id = $1
		  AND amount < 0
		  AND type = ANY($2)
		  AND status <> 'FAILED'
		  AND created_at >= $3`,
		accountID, outgoingTypes(), since,
	).Scan(&total)
	if err != nil {
		return 0, mapError(fmt.Errorf("outgoing sum failed: %w", err))
	}
	return total, nil
}

func (t *pgTx) InsertPixKey(ctx context.Context, key *domain.PixKey) error {
	var network *string
	if key.Network != nil {
		n := string(*key.Network)
		network = &n
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO pix_keys (account_id, key, kind, category, network)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		key.AccountID, key.Key, string(key.Kind), string(key.Category), network,
	).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrPixKeyTaken, key.Key)
		}
		return mapError(fmt.Errorf("pix key insert failed: %w", err))
	}
	return nil
}

func outgoingTypes() []string {
	types := domain.OutgoingTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad transaction id %q: %w", s, err)
	}
	return id, nil
}
