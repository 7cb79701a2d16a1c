package api

import (
	"net/http"
	"strconv"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/identity"
	"github.com/pointify/ledger/internal/models"
)

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	acc, err := h.ledger.GetBalance(r.Context(), caller.AccountID)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, models.NewBalanceResponse(acc))
}

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	var req models.TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.ledger.TransferPoints(r.Context(), domain.TransferRequest{
		SenderID:       caller.AccountID,
		Recipient:      req.Recipient,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	if res.Replayed {
		respondWithData(w, http.StatusOK, res)
		return
	}
	respondWithData(w, http.StatusCreated, res)
}

func (h *Handler) CreateSwapHandler(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	var req models.SwapRequest
	if !h.decode(w, r, &req) {
		return
	}
	target, err := domain.ParseCurrency(req.Target)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}

	row, err := h.ledger.Swap(r.Context(), caller.AccountID, req.Amount, target)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithData(w, http.StatusCreated, row)
}

func (h *Handler) CreateWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	var req models.WithdrawalRequest
	if !h.decode(w, r, &req) {
		return
	}

	row, err := h.ledger.Withdraw(r.Context(), caller.AccountID, req.Amount, req.PixKey)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	// Accepted: the payout settles asynchronously at the provider.
	respondWithData(w, http.StatusAccepted, row)
}

func (h *Handler) CreatePixKeyHandler(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	var req models.PixKeyRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := domain.PixKey{
		Key:      req.Key,
		Kind:     domain.PixKeyKind(req.Kind),
		Category: domain.PixKeyCategory(req.Category),
	}
	if req.Network != nil {
		n := domain.Network(*req.Network)
		key.Network = &n
	}

	out, err := h.ledger.RegisterPixKey(r.Context(), caller.AccountID, key)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithData(w, http.StatusCreated, out)
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	rows, err := h.ledger.RecentTransactions(r.Context(), caller.AccountID, limit)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, rows)
}

func (h *Handler) ListAllTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	rows, err := h.ledger.RecentAll(r.Context(), limit)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, rows)
}

func (h *Handler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	window, err := domain.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	sum, err := h.ledger.Summary(r.Context(), window)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, sum)
}

// SettleDepositHandler is called by the PIX provider webhook. A repeated
// charge id answers 200 with the original row and duplicate=true.
func (h *Handler) SettleDepositHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SettleDepositRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.ledger.SettleDeposit(r.Context(), req.AccountID, req.AmountBRL, req.ExternalID)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	respondWithData(w, status, res)
}

func (h *Handler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req models.OpenAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, err := h.ledger.OpenAccount(r.Context(), req.Email, req.Name, req.Limits.Domain())
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithData(w, http.StatusCreated, models.NewBalanceResponse(acc))
}

// limitParam reads ?limit=. Absent means the default; clamping happens in
// the ledger.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be an integer")
		return 0, false
	}
	return n, true
}

// mustIdentity is only called behind authenticate.
func mustIdentity(r *http.Request) identity.Identity {
	id, _ := identity.FromContext(r.Context())
	return id
}
