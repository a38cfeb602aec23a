package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/punchamoorthee/finance-ledger/internal/domain"
	"github.com/punchamoorthee/finance-ledger/internal/logger"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Ledger is the service surface the handlers depend on.
type Ledger interface {
	CreateTransaction(ctx context.Context, ownerID string, in domain.TransactionInput) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, ownerID, id string, in domain.TransactionInput) (*domain.Transaction, error)
	BulkDeleteTransactions(ctx context.Context, ownerID string, ids []string) (*domain.BulkDeleteResult, error)
	GetTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error)
	GetAccountWithTransactions(ctx context.Context, ownerID, accountID string) (*domain.AccountWithTransactions, error)
	CreateAccount(ctx context.Context, ownerID string, in domain.AccountInput) (*domain.Account, error)
	SetDefaultAccount(ctx context.Context, ownerID, accountID string) (*domain.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error)
}

type Handler struct {
	ledger Ledger
	log    zerolog.Logger
}

func NewHandler(l Ledger, log zerolog.Logger) *Handler {
	return &Handler{ledger: l, log: log}
}

// Router wires every endpoint plus /health and /metrics.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestID, Logger(h.log), Recovery)

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(Identity)
	apiV1.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	apiV1.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/default", h.SetDefaultAccount).Methods("PUT")
	apiV1.HandleFunc("/transactions", h.CreateTransaction).Methods("POST")
	apiV1.HandleFunc("/transactions/bulk-delete", h.BulkDeleteTransactions).Methods("POST")
	apiV1.HandleFunc("/transactions/{id}", h.GetTransaction).Methods("GET")
	apiV1.HandleFunc("/transactions/{id}", h.UpdateTransaction).Methods("PUT")
	apiV1.HandleFunc("/transactions/{id}", h.DeleteTransaction).Methods("DELETE")
	return r
}

// statusFor maps a ledger error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPartialOwnershipMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Entity string `json:"entity,omitempty"`
	ID     string `json:"id,omitempty"`
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, errorBody{Error: msg}, method, endpoint)
}

// respondLedgerError reports kind and affected id so clients can act on the failure.
func (h *Handler) respondLedgerError(w http.ResponseWriter, r *http.Request, err error, method, endpoint string) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}

	var le *domain.LedgerError
	if errors.As(err, &le) {
		body.Kind = le.Kind.Error()
		body.Entity = le.Entity
		body.ID = le.ID
	}
	if code == http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("endpoint", endpoint).Msg("request failed")
		body.Error = "Internal Server Error"
	}
	h.respondJSON(w, code, body, method, endpoint)
}
