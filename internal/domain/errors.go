package domain

import "errors"

// Business and validation failures. They are safe to show to end users.
var (
	ErrInvalidAmount          = errors.New("amount must be a positive integer")
	ErrRecipientRequired      = errors.New("recipient is required")
	ErrSelfTransferNotAllowed = errors.New("cannot transfer to self")
	ErrRecipientNotFound      = errors.New("recipient not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountExists          = errors.New("account already exists")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrLimitExceeded          = errors.New("limit exceeded")
	ErrUnsupportedCurrency    = errors.New("unsupported currency")
	ErrAmountBelowFee         = errors.New("amount does not cover the fee")
	ErrPixKeyNotFound         = errors.New("pix key not found")
	ErrPixKeyTaken            = errors.New("pix key already registered")
	ErrInvalidPixKey          = errors.New("invalid pix key")
	ErrChargeIDRequired       = errors.New("charge id is required")
	ErrInvalidWindow          = errors.New("invalid summary window")
	ErrIdempotencyMismatch    = errors.New("idempotency key reused with a different request")
	ErrChargeIDConflict       = errors.New("charge id is already used by a non-deposit transaction")
)

// ErrDuplicateExternalReference marks a deposit whose charge id was already
// settled. Callers treat it as success.
var ErrDuplicateExternalReference = errors.New("duplicate external reference")

// Infrastructure failures. Details stay in server logs.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConflict         = errors.New("transaction conflict")
	ErrRatesUnavailable = errors.New("exchange rates unavailable")
)

var codes = []struct {
	err     error
	code    string
	message string
}{
	{ErrInvalidAmount, "INVALID_AMOUNT", "Amount must be a positive whole number"},
	{ErrRecipientRequired, "RECIPIENT_REQUIRED", "Recipient is required"},
	{ErrSelfTransferNotAllowed, "SELF_TRANSFER_NOT_ALLOWED", "You cannot transfer points to yourself"},
	{ErrRecipientNotFound, "RECIPIENT_NOT_FOUND", "Recipient not found"},
	{ErrAccountNotFound, "ACCOUNT_NOT_FOUND", "Account not found"},
	{ErrAccountExists, "ACCOUNT_EXISTS", "An account with this email already exists"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE", "Insufficient balance"},
	{ErrLimitExceeded, "LIMIT_EXCEEDED", "Transaction limit exceeded"},
	{ErrUnsupportedCurrency, "UNSUPPORTED_CURRENCY", "Unsupported currency"},
	{ErrAmountBelowFee, "AMOUNT_BELOW_FEE", "Amount is too small to cover the fee"},
	{ErrPixKeyNotFound, "PIX_KEY_NOT_FOUND", "PIX key not found"},
	{ErrPixKeyTaken, "PIX_KEY_TAKEN", "PIX key already registered"},
	{ErrInvalidPixKey, "INVALID_PIX_KEY", "Invalid PIX key"},
	{ErrChargeIDRequired, "CHARGE_ID_REQUIRED", "Charge id is required"},
	{ErrInvalidWindow, "INVALID_WINDOW", "Window must be today or all"},
	{ErrChargeIDConflict, "CHARGE_ID_CONFLICT", "Charge id conflicts with an existing transaction"},
	{ErrIdempotencyMismatch, "IDEMPOTENCY_MISMATCH", "Idempotency key was already used for a different transfer"},
	{ErrDuplicateExternalReference, "DUPLICATE_EXTERNAL_REFERENCE", "Deposit already settled"},
}

// CodeTryAgain is reported for every infrastructure failure.
const CodeTryAgain = "TRY_AGAIN"

// Code maps err to a stable machine-readable code.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeTryAgain
}

// Message maps err to a message fit for end users. Infrastructure errors get
// a generic message.
func Message(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.message
		}
	}
	return "Something went wrong, please try again"
}

// IsBusiness reports whether err is an expected, non-retryable outcome.
func IsBusiness(err error) bool {
	return Code(err) != CodeTryAgain
}
