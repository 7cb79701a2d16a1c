package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/store"
)

type memTx struct {
	st  *state
	now func() time.Time
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	id, ok := t.st.emails[email]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return t.st.accounts[id].snapshot(id), nil
}

func (t *memTx) FindPixKey(ctx context.Context, key string, category domain.PixKeyCategory) (*domain.PixKey, error) {
	k, ok := t.st.pixKeys[key]
	if !ok || k.Category != category {
		return nil, domain.ErrPixKeyNotFound
	}
	return &k, nil
}

func (t *memTx) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	out := make(map[int64]*domain.Account, len(ordered))
	for _, id := range ordered {
		row, ok := t.st.accounts[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", domain.ErrAccountNotFound, id)
		}
		out[id] = row.snapshot(id)
	}
	return out, nil
}

func (t *memTx) AddPoints(ctx context.Context, accountID, delta int64) error {
	return t.AddBalance(ctx, accountID, domain.CurrencyPoints, delta)
}

func (t *memTx) AddBalance(ctx context.Context, accountID int64, currency domain.Currency, delta int64) error {
	row, ok := t.st.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrAccountNotFound, accountID)
	}

	var bal *int64
	switch currency {
	case domain.CurrencyPoints:
		bal = &row.balances.Points
	case domain.CurrencyUSDT:
		bal = &row.balances.USDT
	case domain.CurrencyBTC:
		bal = &row.balances.BTC
	default:
		return fmt.Errorf("%w: no balance column for %q", domain.ErrUnsupportedCurrency, currency)
	}
	if *bal+delta < 0 {
		return fmt.Errorf("%w: account %d", domain.ErrInsufficientBalance, accountID)
	}
	*bal += delta
	t.st.accounts[accountID] = row
	return nil
}

func (t *memTx) InsertTransactions(ctx context.Context, txs ...*domain.Transaction) error {
	for _, r := range txs {
		if _, ok := t.st.accounts[r.AccountID]; !ok {
			return fmt.Errorf("%w: %d", domain.ErrAccountNotFound, r.AccountID)
		}
		if r.ExternalRef != nil {
			if _, dup := t.st.refs[*r.ExternalRef]; dup {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateExternalReference, *r.ExternalRef)
			}
			t.st.refs[*r.ExternalRef] = len(t.st.txs)
		}
		row := *r
		if row.CreatedAt.IsZero() {
			row.CreatedAt = t.now().UTC()
		}
		t.st.txs = append(t.st.txs, row)
	}
	return nil
}

func (t *memTx) FindByExternalRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	i, ok := t.st.refs[ref]
	if !ok {
		return nil, nil
	}
	row := t.st.txs[i]
	return &row, nil
}

func (t *memTx) OutgoingSince(ctx context.Context, accountID int64, since time.Time) (int64, error) {
	var total int64
	for _, r := range t.st.txs {
		if r.AccountID != accountID || r.Amount >= 0 || !r.Type.Outgoing() {
			continue
		}
		if r.Status == domain.StatusFailed || r.CreatedAt.Before(since) {
			continue
		}
		total += -r.Amount
	}
	return total, nil
}

func (t *memTx) InsertPixKey(ctx context.Context, key *domain.PixKey) error {
	if _, ok := t.st.accounts[key.AccountID]; !ok {
		return fmt.Errorf("%w: %d", domain.ErrAccountNotFound, key.AccountID)
	}
	if _, taken := t.st.pixKeys[key.Key]; taken {
		return fmt.Errorf("%w: %s", domain.ErrPixKeyTaken, key.Key)
	}
	t.st.nextKeyID++
	key.ID = t.st.nextKeyID
	key.CreatedAt = t.now().UTC()
	t.st.pixKeys[key.Key] = *key
	return nil
}
