// Package service is the ledger transfer engine. Every balance change runs in
// exactly one store unit of work; conflicts are retried here, business
// failures are returned to the caller untouched.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/fee"
	"github.com/pointify/ledger/internal/rates"
	"github.com/pointify/ledger/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	opTransfer    = "transfer"
	opDeposit     = "deposit"
	opSwap        = "swap"
	opWithdraw    = "withdraw"
	opPixKey      = "pix_key"
	opOpenAccount = "open_account"
)

const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 20 * time.Millisecond
)

var (
	ledgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Ledger operations, labeled by operation and outcome code",
	}, []string{"operation", "outcome"})

	ledgerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_conflict_retries_total",
		Help: "Units of work retried after a serialization failure or deadlock",
	}, []string{"operation"})
)

type LedgerService struct {
	store  store.Store
	rates  rates.Source
	fees   fee.Table
	logger *zap.Logger

	maxRetries int
	backoff    time.Duration
	now        func() time.Time
}

type Option func(*LedgerService)

// WithRetry sets how many times a conflicting unit of work is re-run and the
// first backoff; the backoff doubles on every retry.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(s *LedgerService) {
		s.maxRetries = maxRetries
		s.backoff = backoff
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(st store.Store, rs rates.Source, fees fee.Table, logger *zap.Logger, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:      st,
		rates:      rs,
		fees:       fees,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultRetryBackoff,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyFee splits gross into fee and net under policy.
func ApplyFee(gross int64, policy fee.Policy) fee.Result {
	return fee.Apply(gross, policy)
}

// execute runs fn in a unit of work, re-running it while the store reports a
// conflict. fn must only publish results through variables it assigns on
// every run.
func (s *LedgerService) execute(ctx context.Context, op string, fn func(ctx context.Context, tx store.Tx) error) error {
	backoff := s.backoff
	for attempt := 0; ; attempt++ {
		err := s.store.WithinTx(ctx, fn)
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		if attempt >= s.maxRetries {
			return fmt.Errorf("%w: %s gave up after %d attempts: %v", domain.ErrStoreUnavailable, op, attempt+1, err)
		}

		ledgerRetriesTotal.WithLabelValues(op).Inc()
		s.logger.Warn("ledger conflict, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
	}
}

// record counts the outcome of op and logs failures: business outcomes at
// info, infrastructure failures at error.
func (s *LedgerService) record(op string, err error, fields ...zap.Field) {
	if err == nil {
		ledgerOpsTotal.WithLabelValues(op, "ok").Inc()
		return
	}

	code := domain.Code(err)
	ledgerOpsTotal.WithLabelValues(op, strings.ToLower(code)).Inc()
	fields = append(fields, zap.String("operation", op), zap.String("code", code), zap.Error(err))
	if domain.IsBusiness(err) {
		s.logger.Info("ledger operation rejected", fields...)
		return
	}
	s.logger.Error("ledger operation failed", fields...)
}

func (s *LedgerService) currentRates(ctx context.Context) (rates.Rates, error) {
	r, err := s.rates.Current(ctx)
	if err != nil {
		return rates.Rates{}, fmt.Errorf("%w: %w", domain.ErrRatesUnavailable, err)
	}
	return r, nil
}

// checkLimits runs against a locked account so concurrent debits of the same
// account see each other's rows.
func (s *LedgerService) checkLimits(ctx context.Context, tx store.Tx, acc *domain.Account, amount int64, now time.Time) error {
	if !acc.Limits.NeedsHistory() {
		return acc.Limits.Check(amount, 0, 0)
	}

	var day, month int64
	var err error
	if acc.Limits.Daily > 0 {
		if day, err = tx.OutgoingSince(ctx, acc.ID, now.Add(-domain.DailyWindow)); err != nil {
			return err
		}
	}
	if acc.Limits.Monthly > 0 {
		if month, err = tx.OutgoingSince(ctx, acc.ID, now.Add(-domain.MonthlyWindow)); err != nil {
			return err
		}
	}
	return acc.Limits.Check(amount, day, month)
}

// debitPoints locks the account, checks limits and balance, then takes amount
// points out of it.
func (s *LedgerService) debitPoints(ctx context.Context, tx store.Tx, accountID, amount int64, now time.Time) error {
	locked, err := tx.LockAccounts(ctx, accountID)
	if err != nil {
		return err
	}
	acc := locked[accountID]

	if err := s.checkLimits(ctx, tx, acc, amount, now); err != nil {
		return err
	}
	if acc.Points() < amount {
		return fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientBalance, acc.Points(), amount)
	}
	return tx.AddPoints(ctx, accountID, -amount)
}

func describe(base, note string) string {
	if note == "" {
		return base
	}
	return base + ": " + note
}
