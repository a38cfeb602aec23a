package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/finance-ledger/internal/domain"
	"github.com/punchamoorthee/finance-ledger/internal/models"
	"github.com/punchamoorthee/finance-ledger/internal/service"
	"github.com/punchamoorthee/finance-ledger/internal/store"
)

func newTestRouter() http.Handler {
	svc := service.NewLedgerService(store.NewMemory(), nil, zerolog.Nop())
	return NewHandler(svc, zerolog.Nop()).Router()
}

func do(t *testing.T, h http.Handler, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createAccount(t *testing.T, h http.Handler, user string, balance float64) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/accounts", user, map[string]interface{}{
		"name": "Checking", "type": "CURRENT", "balance": balance,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Account](t, w).ID
}

func TestTransactionLifecycle(t *testing.T) {
	h := newTestRouter()
	acc := createAccount(t, h, "user-1", 100)

	w := do(t, h, http.MethodPost, "/api/v1/transactions", "user-1", map[string]interface{}{
		"account_id": acc, "type": "EXPENSE", "amount": 30.00, "date": "2024-01-31",
		"category": "rent", "is_recurring": true, "recurring_interval": "MONTHLY",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Transaction](t, w)
	assert.Equal(t, 30.0, created.Amount)
	assert.Equal(t, "2024-01-31", created.Date)
	require.NotNil(t, created.NextRecurringDate)
	assert.Equal(t, "2024-02-29", *created.NextRecurringDate)
	assert.Equal(t, "/api/v1/transactions/"+created.ID, w.Header().Get("Location"))

	w = do(t, h, http.MethodGet, "/api/v1/accounts/"+acc, "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[models.AccountWithTransactions](t, w)
	assert.Equal(t, 70.0, view.Balance)
	assert.Equal(t, 1, view.Count)

	w = do(t, h, http.MethodPut, "/api/v1/transactions/"+created.ID, "user-1", map[string]interface{}{
		"account_id": acc, "type": "INCOME", "amount": "10.00", "date": "2024-01-31", "category": "refund",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.Transaction](t, w)
	assert.Nil(t, updated.NextRecurringDate)

	w = do(t, h, http.MethodGet, "/api/v1/accounts/"+acc, "user-1", nil)
	assert.Equal(t, 110.0, decode[models.AccountWithTransactions](t, w).Balance)

	w = do(t, h, http.MethodDelete, "/api/v1/transactions/"+created.ID, "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.BulkDeleteResponse](t, w)
	assert.True(t, res.Success)
	assert.Equal(t, []string{acc}, res.AffectedAccountIDs)

	w = do(t, h, http.MethodGet, "/api/v1/accounts/"+acc, "user-1", nil)
	assert.Equal(t, 100.0, decode[models.AccountWithTransactions](t, w).Balance)
}

func TestBulkDelete_OwnershipMismatch(t *testing.T) {
	h := newTestRouter()
	mine := createAccount(t, h, "user-1", 0)
	theirs := createAccount(t, h, "user-2", 0)

	post := func(user, acc string) string {
		w := do(t, h, http.MethodPost, "/api/v1/transactions", user, map[string]interface{}{
			"account_id": acc, "type": "EXPENSE", "amount": 5, "date": "2024-02-01", "category": "food",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decode[models.Transaction](t, w).ID
	}
	a, b, c := post("user-1", mine), post("user-1", mine), post("user-2", theirs)

	w := do(t, h, http.MethodPost, "/api/v1/transactions/bulk-delete", "user-1", models.BulkDeleteRequest{IDs: []string{a, b, c}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, domain.ErrPartialOwnershipMismatch.Error(), body.Kind)
	assert.Equal(t, c, body.ID)

	w = do(t, h, http.MethodGet, "/api/v1/accounts/"+mine, "user-1", nil)
	view := decode[models.AccountWithTransactions](t, w)
	assert.Equal(t, 2, view.Count)
	assert.Equal(t, -10.0, view.Balance)
}

func TestErrorStatuses(t *testing.T) {
	h := newTestRouter()
	acc := createAccount(t, h, "user-1", 0)

	w := do(t, h, http.MethodGet, "/api/v1/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/accounts/"+acc, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/transactions/missing", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "transaction", decode[errorBody](t, w).Entity)

	w = do(t, h, http.MethodPost, "/api/v1/transactions", "user-1", map[string]interface{}{
		"account_id": acc, "type": "EXPENSE", "amount": -1, "date": "2024-02-01", "category": "food",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/transactions", "user-1", map[string]interface{}{
		"account_id": acc, "type": "EXPENSE", "amount": 1, "date": "yesterday", "category": "food",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/transactions", "user-1", map[string]interface{}{
		"account_id": acc, "type": "EXPENSE", "amount": "0.00005", "date": "2024-02-01", "category": "food",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, domain.ErrInvalidInput.Error(), decode[errorBody](t, w).Kind)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewBufferString("{"))
	req.Header.Set(UserHeader, "user-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountsDefaultSwitch(t *testing.T) {
	h := newTestRouter()
	first := createAccount(t, h, "user-1", 0)
	second := createAccount(t, h, "user-1", 0)

	w := do(t, h, http.MethodPut, "/api/v1/accounts/"+second+"/default", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.Account](t, w).IsDefault)

	w = do(t, h, http.MethodGet, "/api/v1/accounts", "user-1", nil)
	accounts := decode[[]models.Account](t, w)
	require.Len(t, accounts, 2)
	assert.Equal(t, second, accounts[0].ID)
	assert.True(t, accounts[0].IsDefault)
	assert.Equal(t, first, accounts[1].ID)
	assert.False(t, accounts[1].IsDefault)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.LedgerError{Op: "x", Kind: domain.ErrUnauthorized}, http.StatusUnauthorized},
		{&domain.LedgerError{Op: "x", Kind: domain.ErrInvalidInput}, http.StatusUnprocessableEntity},
		{&domain.LedgerError{Op: "x", Kind: domain.ErrNotFound}, http.StatusNotFound},
		{&domain.LedgerError{Op: "x", Kind: domain.ErrPartialOwnershipMismatch}, http.StatusForbidden},
		{&domain.LedgerError{Op: "x", Kind: domain.ErrStoreFailure, Err: domain.ErrConflict}, http.StatusConflict},
		{&domain.LedgerError{Op: "x", Kind: domain.ErrStoreFailure, Err: errors.New("io")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

type panicLedger struct{ Ledger }

func (panicLedger) ListAccounts(context.Context, string) ([]domain.Account, error) {
	panic("boom")
}

func TestRecoveryAndRequestID(t *testing.T) {
	var logs bytes.Buffer
	h := NewHandler(panicLedger{}, zerolog.New(&logs)).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	req.Header.Set(UserHeader, "user-1")
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	var lines []map[string]interface{}
	dec := json.NewDecoder(&logs)
	for dec.More() {
		var line map[string]interface{}
		require.NoError(t, dec.Decode(&line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "Panic recovered", lines[0]["message"])
	assert.Equal(t, "req-123", lines[0]["request_id"])
	assert.Equal(t, "HTTP request", lines[1]["message"])
	assert.Equal(t, "req-123", lines[1]["request_id"])
	assert.Equal(t, float64(http.StatusInternalServerError), lines[1]["status"])
}

func TestHealth(t *testing.T) {
	w := do(t, newTestRouter(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
