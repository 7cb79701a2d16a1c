package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Currency tags the unit of a transaction's gross/net/fee amounts.
type Currency string

const (
	CurrencyPoints Currency = "POINTS"
	CurrencyBRL    Currency = "BRL"
	CurrencyUSDT   Currency = "USDT"
	CurrencyBTC    Currency = "BTC"
)

// Scale is the number of decimal places of the currency's minor unit.
func (c Currency) Scale() int32 {
	switch c {
	case CurrencyBRL:
		return 2
	case CurrencyUSDT:
		return 6
	case CurrencyBTC:
		return 8
	default:
		return 0
	}
}

func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(s))); c {
	case CurrencyPoints, CurrencyBRL, CurrencyUSDT, CurrencyBTC:
		return c, nil
	}
	return "", ErrUnsupportedCurrency
}

type TxType string

const (
	TxTransferOut     TxType = "TRANSFER_OUT"
	TxTransferIn      TxType = "TRANSFER_IN"
	TxDeposit         TxType = "DEPOSIT"
	TxWithdrawal      TxType = "WITHDRAWAL"
	TxSwap            TxType = "SWAP"
	TxCashback        TxType = "CASHBACK"
	TxMerchantPayment TxType = "MERCHANT_PAYMENT"
)

var outgoingTypes = []TxType{TxTransferOut, TxWithdrawal, TxSwap, TxMerchantPayment}

// OutgoingTypes lists the row types that count against spending limits.
func OutgoingTypes() []TxType {
	return slices.Clone(outgoingTypes)
}

func (t TxType) Outgoing() bool {
	return slices.Contains(outgoingTypes, t)
}

type TxStatus string

const (
	StatusPending   TxStatus = "PENDING"
	StatusCompleted TxStatus = "COMPLETED"
	StatusFailed    TxStatus = "FAILED"
)

// Balances holds an account's holdings in minor units.
type Balances struct {
	Points int64 `json:"points"`
	USDT   int64 `json:"usdt"`
	BTC    int64 `json:"btc"`
}

// Of returns the balance held in the given currency.
func (b Balances) Of(c Currency) int64 {
	switch c {
	case CurrencyUSDT:
		return b.USDT
	case CurrencyBTC:
		return b.BTC
	case CurrencyPoints:
		return b.Points
	}
	return 0
}

// Account is a read-only snapshot of an account row. Balances change only
// through a store Tx inside a ledger unit of work.
type Account struct {
	ID        int64
	Email     string
	Name      string
	KYCLevel  int
	Limits    Limits
	CreatedAt time.Time

	balances Balances
}

// NewAccount builds the snapshot a store hands out after reading a row.
func NewAccount(id int64, email, name string, balances Balances, limits Limits, createdAt time.Time) *Account {
	return &Account{
		ID:        id,
		Email:     email,
		Name:      name,
		Limits:    limits,
		CreatedAt: createdAt,
		balances:  balances,
	}
}

func (a *Account) Points() int64      { return a.balances.Points }
func (a *Account) USDT() int64        { return a.balances.USDT }
func (a *Account) BTC() int64         { return a.balances.BTC }
func (a *Account) Balances() Balances { return a.balances }

// Transaction is one immutable row of account history. Amount is the signed
// effect on the points balance; Gross, Net and Fee are in Currency minor units.
type Transaction struct {
	ID             uuid.UUID `json:"id"`
	AccountID      int64     `json:"account_id"`
	CounterpartyID *int64    `json:"counterparty_id,omitempty"`
	Amount         int64     `json:"amount"`
	Gross          int64     `json:"gross"`
	Net            int64     `json:"net"`
	Fee            int64     `json:"fee"`
	Currency       Currency  `json:"currency"`
	Type           TxType    `json:"type"`
	Status         TxStatus  `json:"status"`
	Description    string    `json:"description"`
	ExternalRef    *string   `json:"external_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewTransaction returns a row with a fresh id; callers fill the amounts.
func NewTransaction(accountID int64, typ TxType, status TxStatus, currency Currency, createdAt time.Time) *Transaction {
	return &Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      typ,
		Status:    status,
		Currency:  currency,
		CreatedAt: createdAt,
	}
}

// TransferRequest is the ephemeral input of an internal points transfer.
// IdempotencyKey is optional; a sender reusing a key gets the first result.
type TransferRequest struct {
	SenderID       int64
	Recipient      string
	Amount         int64
	Description    string
	IdempotencyKey string
}

// Validate runs the checks that need no store access.
func (r *TransferRequest) Validate() error {
	r.Recipient = strings.TrimSpace(r.Recipient)
	r.Description = strings.TrimSpace(r.Description)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	if r.SenderID <= 0 {
		return ErrAccountNotFound
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	if r.Recipient == "" {
		return ErrRecipientRequired
	}
	return nil
}

// Reference is the external reference stored on the debit row of a keyed
// transfer. Keys are scoped to the sender.
func (r *TransferRequest) Reference() string {
	if r.IdempotencyKey == "" {
		return ""
	}
	return fmt.Sprintf("transfer:%d:%s", r.SenderID, r.IdempotencyKey)
}

// Charge is the descriptor returned by the PIX provider when a deposit is
// initiated. Confirmation arrives later and triggers deposit settlement.
type Charge struct {
	AmountBRL  int64     `json:"amount_cents"`
	ExternalID string    `json:"external_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Window selects the period of an aggregate query.
type Window string

const (
	WindowToday Window = "today"
	WindowAll   Window = "all"
)

func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return WindowToday, nil
	case WindowToday, WindowAll:
		return w, nil
	}
	return "", ErrInvalidWindow
}

// Since returns the inclusive lower bound of the window; the zero time means
// no bound.
func (w Window) Since(now time.Time) time.Time {
	if w == WindowToday {
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// Summary aggregates transaction history over a window.
type Summary struct {
	Window       Window             `json:"window"`
	Count        int64              `json:"count"`
	VolumePoints int64              `json:"volume_points"`
	Revenue      map[Currency]int64 `json:"revenue"`
}
