package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/fee"
	"github.com/pointify/ledger/internal/identity"
	"github.com/pointify/ledger/internal/rates"
	"github.com/pointify/ledger/internal/service"
	"github.com/pointify/ledger/internal/store/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookSecret = "hook-secret"

type testEnv struct {
	t      *testing.T
	ledger *service.LedgerService
	auth   *identity.JWTProvider
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ledger := service.NewLedgerService(memstore.New(), rates.NewStatic(rates.Rates{
		PointsPerBRL: decimal.NewFromInt(1),
		USDTPerPoint: decimal.RequireFromString("0.18"),
		BTCPerPoint:  decimal.RequireFromString("0.0000018"),
	}), fee.DefaultTable(), zap.NewNop())
	auth := identity.NewJWTProvider("jwt-secret", "pointify-auth")

	srv := httptest.NewServer(NewHandler(ledger, auth, webhookSecret, zap.NewNop()).Router())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, ledger: ledger, auth: auth, server: srv}
}

func (e *testEnv) account(email string, points int64) (*domain.Account, string) {
	e.t.Helper()
	ctx := context.Background()
	acc, err := e.ledger.OpenAccount(ctx, email, email, domain.Limits{})
	require.NoError(e.t, err)
	if points > 0 {
		_, err = e.ledger.SettleDeposit(ctx, acc.ID, points*100, "seed-"+email)
		require.NoError(e.t, err)
	}
	token, err := e.auth.Sign(acc.ID, "", time.Minute)
	require.NoError(e.t, err)
	return acc, token
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) do(method, path, token string, body any, headers ...string) (int, envelope) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHealthCheckHandler(t *testing.T) {
	e := newTestEnv(t)
	resp, err := http.Get(e.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(headerRequestID))
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	status, env := e.do(http.MethodGet, "/api/v1/balance", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.False(t, env.OK)
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = e.do(http.MethodGet, "/api/v1/balance", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestTransferFlow(t *testing.T) {
	e := newTestEnv(t)
	_, aliceToken := e.account("alice@x.com", 1000)
	bob, bobToken := e.account("bob@x.com", 0)

	status, env := e.do(http.MethodPost, "/api/v1/transfers", aliceToken, map[string]any{
		"recipient": "bob@x.com", "amount": 400, "description": "rent",
	})
	require.Equal(t, http.StatusCreated, status)
	require.True(t, env.OK)
	var res service.TransferResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Equal(t, int64(-400), res.Debit.Amount)
	require.Equal(t, bob.ID, res.Credit.AccountID)

	status, env = e.do(http.MethodGet, "/api/v1/balance", bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	var bal struct {
		Balances domain.Balances `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bal))
	require.Equal(t, int64(400), bal.Balances.Points)

	status, env = e.do(http.MethodGet, "/api/v1/transactions?limit=5", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	var rows []domain.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 2)
	require.Equal(t, domain.TxTransferOut, rows[0].Type)
}

func TestTransferIdempotencyKey(t *testing.T) {
	e := newTestEnv(t)
	alice, aliceToken := e.account("alice@x.com", 1000)
	e.account("bob@x.com", 0)
	body := map[string]any{"recipient": "bob@x.com", "amount": 250}

	status, env := e.do(http.MethodPost, "/api/v1/transfers", aliceToken, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, status)
	var first service.TransferResult
	require.NoError(t, json.Unmarshal(env.Data, &first))

	status, env = e.do(http.MethodPost, "/api/v1/transfers", aliceToken, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, status)
	var replay service.TransferResult
	require.NoError(t, json.Unmarshal(env.Data, &replay))
	require.True(t, replay.Replayed)
	require.Equal(t, first.Debit.ID, replay.Debit.ID)

	status, env = e.do(http.MethodPost, "/api/v1/transfers", aliceToken,
		map[string]any{"recipient": "bob@x.com", "amount": 300}, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "IDEMPOTENCY_MISMATCH", env.Error.Code)

	acc, err := e.ledger.GetBalance(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(750), acc.Points())
}

func TestTransferErrors(t *testing.T) {
	e := newTestEnv(t)
	_, aliceToken := e.account("alice@x.com", 600)
	e.account("bob@x.com", 0)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"insufficient", map[string]any{"recipient": "bob@x.com", "amount": 2000}, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{"zero amount", map[string]any{"recipient": "bob@x.com", "amount": 0}, http.StatusUnprocessableEntity, "INVALID_AMOUNT"},
		{"no recipient", map[string]any{"amount": 5}, http.StatusUnprocessableEntity, "RECIPIENT_REQUIRED"},
		{"self", map[string]any{"recipient": "alice@x.com", "amount": 5}, http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED"},
		{"unknown", map[string]any{"recipient": "zed@x.com", "amount": 5}, http.StatusNotFound, "RECIPIENT_NOT_FOUND"},
		{"unknown field", map[string]any{"recipient": "bob@x.com", "amount": 5, "from_account_id": 2}, http.StatusBadRequest, "MALFORMED_BODY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := e.do(http.MethodPost, "/api/v1/transfers", aliceToken, tt.body)
			require.Equal(t, tt.status, status)
			require.False(t, env.OK)
			require.Equal(t, tt.code, env.Error.Code)
			require.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestSwapAndWithdrawal(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.account("alice@x.com", 1000)

	status, env := e.do(http.MethodPost, "/api/v1/swaps", token, map[string]any{"amount": 100, "target": "usdt"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var swap domain.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &swap))
	require.Equal(t, domain.CurrencyUSDT, swap.Currency)

	status, env = e.do(http.MethodPost, "/api/v1/swaps", token, map[string]any{"amount": 100, "target": "DOGE"})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "UNSUPPORTED_CURRENCY", env.Error.Code)

	status, env = e.do(http.MethodPost, "/api/v1/pix-keys", token, map[string]any{
		"key": "12345678901", "kind": "DOCUMENT", "category": "WITHDRAWAL",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = e.do(http.MethodPost, "/api/v1/pix-keys", token, map[string]any{
		"key": "12345678901", "kind": "DOCUMENT", "category": "RECEIVING",
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "PIX_KEY_TAKEN", env.Error.Code)

	status, env = e.do(http.MethodPost, "/api/v1/withdrawals", token, map[string]any{"amount": 100, "pix_key": "12345678901"})
	require.Equal(t, http.StatusAccepted, status, env.Error)
	var w domain.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &w))
	require.Equal(t, domain.StatusPending, w.Status)
	require.Equal(t, int64(300), w.Fee)

	status, env = e.do(http.MethodPost, "/api/v1/withdrawals", token, map[string]any{"amount": 100, "pix_key": "nope"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "PIX_KEY_NOT_FOUND", env.Error.Code)
}

func TestAdminRoutes(t *testing.T) {
	e := newTestEnv(t)
	alice, token := e.account("alice@x.com", 100)
	adminToken, err := e.auth.Sign(alice.ID, identity.RoleAdmin, time.Minute)
	require.NoError(t, err)

	status, env := e.do(http.MethodGet, "/api/v1/admin/transactions", token, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = e.do(http.MethodGet, "/api/v1/admin/transactions?limit=10", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var rows []domain.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)

	status, env = e.do(http.MethodGet, "/api/v1/admin/summary?window=all", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var sum domain.Summary
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	require.Equal(t, domain.WindowAll, sum.Window)
	require.Equal(t, int64(1), sum.Count)

	status, env = e.do(http.MethodGet, "/api/v1/admin/summary?window=decade", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_WINDOW", env.Error.Code)

	status, _ = e.do(http.MethodGet, "/api/v1/admin/transactions?limit=ten", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSettleDepositWebhook(t *testing.T) {
	e := newTestEnv(t)
	alice, token := e.account("alice@x.com", 0)
	body := map[string]any{"account_id": alice.ID, "amount_cents": 5000, "external_id": "charge-9"}

	status, _ := e.do(http.MethodPost, "/internal/v1/deposits/settle", "", body)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = e.do(http.MethodPost, "/internal/v1/deposits/settle", "", body, headerWebhookSecret, "wrong")
	require.Equal(t, http.StatusUnauthorized, status)

	status, env := e.do(http.MethodPost, "/internal/v1/deposits/settle", "", body, headerWebhookSecret, webhookSecret)
	require.Equal(t, http.StatusCreated, status, env.Error)
	var first service.DepositResult
	require.NoError(t, json.Unmarshal(env.Data, &first))
	require.False(t, first.Duplicate)
	require.Equal(t, int64(50), first.Points)

	status, env = e.do(http.MethodPost, "/internal/v1/deposits/settle", "", body, headerWebhookSecret, webhookSecret)
	require.Equal(t, http.StatusOK, status)
	var again service.DepositResult
	require.NoError(t, json.Unmarshal(env.Data, &again))
	require.True(t, again.Duplicate)
	require.Equal(t, first.Transaction.ID, again.Transaction.ID)

	_, env = e.do(http.MethodGet, "/api/v1/balance", token, nil)
	var bal struct {
		Balances domain.Balances `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bal))
	require.Equal(t, int64(50), bal.Balances.Points)
}

func TestOpenAccountWebhook(t *testing.T) {
	e := newTestEnv(t)

	status, env := e.do(http.MethodPost, "/internal/v1/accounts", "", map[string]any{
		"email": "carol@x.com", "name": "Carol", "limits": map[string]any{"daily": 500},
	}, headerWebhookSecret, webhookSecret)
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = e.do(http.MethodPost, "/internal/v1/accounts", "", map[string]any{
		"email": "carol@x.com",
	}, headerWebhookSecret, webhookSecret)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "ACCOUNT_EXISTS", env.Error.Code)

	status, env = e.do(http.MethodPost, "/internal/v1/accounts", "", map[string]any{
		"email": "not-an-email",
	}, headerWebhookSecret, webhookSecret)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_REQUEST", env.Error.Code)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusServiceUnavailable, statusFor(domain.ErrStoreUnavailable))
	require.Equal(t, http.StatusServiceUnavailable, statusFor(domain.ErrConflict))
	require.Equal(t, http.StatusUnprocessableEntity, statusFor(domain.ErrLimitExceeded))
	require.Equal(t, http.StatusNotFound, statusFor(domain.ErrAccountNotFound))
}
