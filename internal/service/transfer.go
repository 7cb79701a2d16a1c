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

// TransferResult acknowledges a transfer with the two rows it wrote. A
// replayed keyed transfer carries only the original debit row.
type TransferResult struct {
	Debit    *domain.Transaction `json:"debit"`
	Credit   *domain.Transaction `json:"credit,omitempty"`
	Replayed bool                `json:"replayed"`
}

// TransferPoints moves points between two accounts with no fee. The recipient
// is an account email or a RECEIVING pix key.
func (s *LedgerService) TransferPoints(ctx context.Context, req domain.TransferRequest) (res *TransferResult, err error) {
	defer func() {
		s.record(opTransfer, err, zap.Int64("sender_id", req.SenderID), zap.Int64("amount", req.Amount))
	}()

	// 1. Validation
	if err = req.Validate(); err != nil {
		return nil, err
	}

	ref := req.Reference()
	err = s.execute(ctx, opTransfer, func(ctx context.Context, tx store.Tx) error {
		res = nil

		if ref != "" {
			prior, err := replayTransfer(ctx, tx, ref, req)
			if err != nil || prior != nil {
				res = prior
				return err
			}
		}

		// 2. Recipient resolution
		recipientID, err := resolveRecipient(ctx, tx, req.Recipient)
		if err != nil {
			return err
		}
		if recipientID == req.SenderID {
			return domain.ErrSelfTransferNotAllowed
		}

		// 3. Deterministic locking
		locked, err := tx.LockAccounts(ctx, req.SenderID, recipientID)
		if err != nil {
			return err
		}
		sender := locked[req.SenderID]

		// 4. Business checks
		now := s.now().UTC()
		if err := s.checkLimits(ctx, tx, sender, req.Amount, now); err != nil {
			return err
		}
		if sender.Points() < req.Amount {
			return fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientBalance, sender.Points(), req.Amount)
		}

		// 5. Balances
		if err := tx.AddPoints(ctx, sender.ID, -req.Amount); err != nil {
			return err
		}
		if err := tx.AddPoints(ctx, recipientID, req.Amount); err != nil {
			return err
		}

		// 6. History
		debit := domain.NewTransaction(sender.ID, domain.TxTransferOut, domain.StatusCompleted, domain.CurrencyPoints, now)
		debit.Amount = -req.Amount
		debit.Gross, debit.Net = req.Amount, req.Amount
		debit.CounterpartyID = &recipientID
		debit.Description = describe("Transfer to "+req.Recipient, req.Description)
		if ref != "" {
			debit.ExternalRef = &ref
		}

		credit := domain.NewTransaction(recipientID, domain.TxTransferIn, domain.StatusCompleted, domain.CurrencyPoints, now)
		credit.Amount = req.Amount
		credit.Gross, credit.Net = req.Amount, req.Amount
		credit.CounterpartyID = &sender.ID
		credit.Description = describe("Transfer from "+sender.Email, req.Description)

		if err := tx.InsertTransactions(ctx, debit, credit); err != nil {
			return err
		}
		res = &TransferResult{Debit: debit, Credit: credit}
		return nil
	})
	if ref != "" && errors.Is(err, domain.ErrDuplicateExternalReference) {
		// A concurrent request with the same key committed first.
		err = s.execute(ctx, opTransfer, func(ctx context.Context, tx store.Tx) error {
			prior, err := replayTransfer(ctx, tx, ref, req)
			if err != nil {
				return err
			}
			if prior == nil {
				return fmt.Errorf("%w: transfer %s reported duplicate but not found", domain.ErrConflict, ref)
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

// replayTransfer returns the recorded result of a keyed transfer, or nil when
// the key is unused.
func replayTransfer(ctx context.Context, tx store.Tx, ref string, req domain.TransferRequest) (*TransferResult, error) {
	prior, err := tx.FindByExternalRef(ctx, ref)
	if err != nil || prior == nil {
		return nil, err
	}
	if prior.AccountID != req.SenderID || prior.Type != domain.TxTransferOut || -prior.Amount != req.Amount {
		return nil, fmt.Errorf("%w: %s", domain.ErrIdempotencyMismatch, req.IdempotencyKey)
	}
	return &TransferResult{Debit: prior, Replayed: true}, nil
}

// resolveRecipient tries an exact email match first, then a RECEIVING pix key.
func resolveRecipient(ctx context.Context, tx store.Tx, identifier string) (int64, error) {
	acc, err := tx.FindAccountByEmail(ctx, strings.ToLower(identifier))
	if err == nil {
		return acc.ID, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return 0, err
	}

	key, err := tx.FindPixKey(ctx, domain.NormalizeKey(identifier), domain.PixKeyReceiving)
	if err != nil {
		if errors.Is(err, domain.ErrPixKeyNotFound) {
			return 0, fmt.Errorf("%w: %s", domain.ErrRecipientNotFound, identifier)
		}
		return 0, err
	}
	return key.AccountID, nil
}
