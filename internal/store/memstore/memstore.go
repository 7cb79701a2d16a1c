// Package memstore is an in-memory store.Store. A unit of work holds the
// store's write lock for its whole duration and operates on a copy of the
// state, which replaces the live state only when the unit succeeds.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/store"
)

type accountRow struct {
	email    string
	name     string
	kyc      int
	balances domain.Balances
	limits   domain.Limits
	created  time.Time
}

func (r accountRow) snapshot(id int64) *domain.Account {
	acc := domain.NewAccount(id, r.email, r.name, r.balances, r.limits, r.created)
	acc.KYCLevel = r.kyc
	return acc
}

type state struct {
	accounts  map[int64]accountRow
	emails    map[string]int64
	txs       []domain.Transaction
	refs      map[string]int
	pixKeys   map[string]domain.PixKey
	nextAccID int64
	nextKeyID int64
}

func (s *state) clone() *state {
	out := &state{
		accounts:  make(map[int64]accountRow, len(s.accounts)),
		emails:    make(map[string]int64, len(s.emails)),
		txs:       slices.Clone(s.txs),
		refs:      make(map[string]int, len(s.refs)),
		pixKeys:   make(map[string]domain.PixKey, len(s.pixKeys)),
		nextAccID: s.nextAccID,
		nextKeyID: s.nextKeyID,
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.emails {
		out.emails[k] = v
	}
	for k, v := range s.refs {
		out.refs[k] = v
	}
	for k, v := range s.pixKeys {
		out.pixKeys[k] = v
	}
	return out
}

type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		st: &state{
			accounts: map[int64]accountRow{},
			emails:   map[string]int64{},
			refs:     map[string]int{},
			pixKeys:  map[string]domain.PixKey{},
		},
		now: time.Now,
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := &memTx{st: s.st.clone(), now: s.now}
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.st = work.st
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, email, name string, limits domain.Limits) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.emails[email]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountExists, email)
	}
	s.st.nextAccID++
	id := s.st.nextAccID
	row := accountRow{email: email, name: name, limits: limits, created: s.now().UTC()}
	s.st.accounts[id] = row
	s.st.emails[email] = id
	return row.snapshot(id), nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.st.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return row.snapshot(id), nil
}

func (s *Store) RecentTransactions(ctx context.Context, accountID int64, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestFirst(s.st.txs, limit, func(t domain.Transaction) bool { return t.AccountID == accountID }), nil
}

func (s *Store) RecentAll(ctx context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestFirst(s.st.txs, limit, func(domain.Transaction) bool { return true }), nil
}

func (s *Store) Summary(ctx context.Context, since time.Time) (domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := domain.Summary{Revenue: map[domain.Currency]int64{}}
	for _, t := range s.st.txs {
		if t.CreatedAt.Before(since) {
			continue
		}
		sum.Count++
		if t.Amount < 0 && t.Status == domain.StatusCompleted {
			sum.VolumePoints += -t.Amount
		}
		if t.Status != domain.StatusFailed && t.Fee > 0 {
			sum.Revenue[t.Currency] += t.Fee
		}
	}
	return sum, nil
}

// newestFirst walks rows from the most recent insert; rows are appended in
// commit order so ties on created_at keep insertion order.
func newestFirst(txs []domain.Transaction, limit int, keep func(domain.Transaction) bool) []domain.Transaction {
	idx := make([]int, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		if keep(txs[i]) {
			idx = append(idx, i)
		}
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return txs[b].CreatedAt.Compare(txs[a].CreatedAt)
	})

	out := []domain.Transaction{}
	for _, i := range idx {
		if len(out) == limit {
			break
		}
		out = append(out, txs[i])
	}
	return out
}
