package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/identity"
	"github.com/pointify/ledger/internal/models"
	"github.com/pointify/ledger/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Ledger is the part of the transfer engine the API serves.
type Ledger interface {
	TransferPoints(ctx context.Context, req domain.TransferRequest) (*service.TransferResult, error)
	SettleDeposit(ctx context.Context, accountID, grossBRL int64, chargeID string) (*service.DepositResult, error)
	Swap(ctx context.Context, accountID, points int64, target domain.Currency) (*domain.Transaction, error)
	Withdraw(ctx context.Context, accountID, points int64, pixKey string) (*domain.Transaction, error)
	RegisterPixKey(ctx context.Context, accountID int64, key domain.PixKey) (*domain.PixKey, error)
	OpenAccount(ctx context.Context, email, name string, limits domain.Limits) (*domain.Account, error)
	GetBalance(ctx context.Context, accountID int64) (*domain.Account, error)
	RecentTransactions(ctx context.Context, accountID int64, limit int) ([]domain.Transaction, error)
	RecentAll(ctx context.Context, limit int) ([]domain.Transaction, error)
	Summary(ctx context.Context, window domain.Window) (domain.Summary, error)
}

var _ Ledger = (*service.LedgerService)(nil)

type Handler struct {
	ledger        Ledger
	auth          identity.Provider
	webhookSecret string
	validate      *validator.Validate
	logger        *zap.Logger
}

func NewHandler(ledger Ledger, auth identity.Provider, webhookSecret string, logger *zap.Logger) *Handler {
	return &Handler{
		ledger:        ledger,
		auth:          auth,
		webhookSecret: webhookSecret,
		validate:      validator.New(),
		logger:        logger,
	}
}

// Router wires every route. /api/v1 needs a bearer token, /api/v1/admin an
// admin token and /internal/v1 the webhook secret.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestID, h.instrument)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(h.authenticate)
	apiV1.HandleFunc("/balance", h.GetBalanceHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/transfers", h.CreateTransferHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/swaps", h.CreateSwapHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/withdrawals", h.CreateWithdrawalHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/pix-keys", h.CreatePixKeyHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/transactions", h.ListTransactionsHandler).Methods(http.MethodGet)

	admin := apiV1.PathPrefix("/admin").Subrouter()
	admin.Use(h.requireAdmin)
	admin.HandleFunc("/transactions", h.ListAllTransactionsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/summary", h.SummaryHandler).Methods(http.MethodGet)

	internal := r.PathPrefix("/internal/v1").Subrouter()
	internal.Use(h.requireWebhookSecret)
	internal.HandleFunc("/deposits/settle", h.SettleDepositHandler).Methods(http.MethodPost)
	internal.HandleFunc("/accounts", h.OpenAccountHandler).Methods(http.MethodPost)

	return r
}

// decode reads a JSON body into dst and runs its validate tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "MALFORMED_BODY", "Malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "Invalid field: " + verrs[0].Field()
	}
	return "Invalid request"
}

// respondWithLedgerError maps a ledger error onto a status and the stable
// error code. Infrastructure details are logged, never returned.
func (h *Handler) respondWithLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		h.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	respondWithError(w, status, domain.Code(err), domain.Message(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrRecipientNotFound),
		errors.Is(err, domain.ErrPixKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPixKeyTaken),
		errors.Is(err, domain.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidWindow):
		return http.StatusBadRequest
	case domain.IsBusiness(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusServiceUnavailable
}

func respondWithError(w http.ResponseWriter, code int, errCode, message string) {
	respondWithJSON(w, code, models.Envelope{Error: &models.ErrorBody{Code: errCode, Message: message}})
}

func respondWithData(w http.ResponseWriter, code int, data any) {
	respondWithJSON(w, code, models.Envelope{OK: true, Data: data})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
