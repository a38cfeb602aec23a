package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/punchamoorthee/finance-ledger/internal/models"
)

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/accounts")
		return
	}

	acc, err := h.ledger.CreateAccount(r.Context(), OwnerID(r.Context()), req.Input())
	if err != nil {
		h.respondLedgerError(w, r, err, "POST", "/accounts")
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%s", acc.ID))
	h.respondJSON(w, http.StatusCreated, models.FromAccount(acc), "POST", "/accounts")
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccounts(r.Context(), OwnerID(r.Context()))
	if err != nil {
		h.respondLedgerError(w, r, err, "GET", "/accounts")
		return
	}
	h.respondJSON(w, http.StatusOK, models.FromAccounts(accounts), "GET", "/accounts")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	view, err := h.ledger.GetAccountWithTransactions(r.Context(), OwnerID(r.Context()), id)
	if err != nil {
		h.respondLedgerError(w, r, err, "GET", "/accounts/{id}")
		return
	}
	if view == nil {
		h.respondError(w, http.StatusNotFound, "Not Found", "GET", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, models.FromAccountWithTransactions(view), "GET", "/accounts/{id}")
}

func (h *Handler) SetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	acc, err := h.ledger.SetDefaultAccount(r.Context(), OwnerID(r.Context()), id)
	if err != nil {
		h.respondLedgerError(w, r, err, "PUT", "/accounts/{id}/default")
		return
	}
	h.respondJSON(w, http.StatusOK, models.FromAccount(acc), "PUT", "/accounts/{id}/default")
}
