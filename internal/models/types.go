// Package models holds the JSON payloads of the HTTP API.
package models

import (
	"github.com/pointify/ledger/internal/domain"
)

// Amounts, recipients and keys are checked by the ledger itself so clients
// get its error codes; tags here only bound the payload.

// TransferRequest is the payload from the client. The sender is the
// authenticated caller.
type TransferRequest struct {
	Recipient   string `json:"recipient" validate:"max=255"`
	Amount      int64  `json:"amount"`
	Description string `json:"description" validate:"max=140"`
}

type SwapRequest struct {
	Amount int64  `json:"amount"`
	Target string `json:"target" validate:"max=8"`
}

type WithdrawalRequest struct {
	Amount int64  `json:"amount"`
	PixKey string `json:"pix_key" validate:"max=255"`
}

type PixKeyRequest struct {
	Key      string  `json:"key" validate:"max=255"`
	Kind     string  `json:"kind" validate:"max=16"`
	Category string  `json:"category" validate:"max=16"`
	Network  *string `json:"network,omitempty" validate:"omitempty,max=8"`
}

// SettleDepositRequest is posted by the PIX provider webhook once a charge is
// paid.
type SettleDepositRequest struct {
	AccountID  int64  `json:"account_id" validate:"required,gt=0"`
	AmountBRL  int64  `json:"amount_cents"`
	ExternalID string `json:"external_id" validate:"max=128"`
}

// OpenAccountRequest is posted by the identity provider when a user signs up.
type OpenAccountRequest struct {
	Email  string        `json:"email" validate:"required,email"`
	Name   string        `json:"name" validate:"max=120"`
	Limits LimitsRequest `json:"limits"`
}

type LimitsRequest struct {
	Daily   int64 `json:"daily" validate:"gte=0"`
	Monthly int64 `json:"monthly" validate:"gte=0"`
	PerTx   int64 `json:"per_tx" validate:"gte=0"`
}

func (l LimitsRequest) Domain() domain.Limits {
	return domain.Limits{Daily: l.Daily, Monthly: l.Monthly, PerTx: l.PerTx}
}

type BalanceResponse struct {
	AccountID int64           `json:"account_id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Balances  domain.Balances `json:"balances"`
	Limits    domain.Limits   `json:"limits"`
}

func NewBalanceResponse(acc *domain.Account) BalanceResponse {
	return BalanceResponse{
		AccountID: acc.ID,
		Email:     acc.Email,
		Name:      acc.Name,
		Balances:  acc.Balances(),
		Limits:    acc.Limits,
	}
}

// Envelope is the body of every API response. Exactly one of Data and Error
// is set.
type Envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
