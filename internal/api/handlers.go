package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/punchamoorthee/finance-ledger/internal/models"
)

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/transactions"))
	defer timer.ObserveDuration()

	var req models.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/transactions")
		return
	}
	in, err := req.Input()
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), "POST", "/transactions")
		return
	}

	txn, err := h.ledger.CreateTransaction(r.Context(), OwnerID(r.Context()), in)
	if err != nil {
		h.respondLedgerError(w, r, err, "POST", "/transactions")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", txn.ID))
	h.respondJSON(w, http.StatusCreated, models.FromTransaction(txn), "POST", "/transactions")
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	txn, err := h.ledger.GetTransaction(r.Context(), OwnerID(r.Context()), id)
	if err != nil {
		h.respondLedgerError(w, r, err, "GET", "/transactions/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, models.FromTransaction(txn), "GET", "/transactions/{id}")
}

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("PUT", "/transactions/{id}"))
	defer timer.ObserveDuration()

	id := mux.Vars(r)["id"]
	var req models.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "PUT", "/transactions/{id}")
		return
	}
	in, err := req.Input()
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), "PUT", "/transactions/{id}")
		return
	}

	txn, err := h.ledger.UpdateTransaction(r.Context(), OwnerID(r.Context()), id, in)
	if err != nil {
		h.respondLedgerError(w, r, err, "PUT", "/transactions/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, models.FromTransaction(txn), "PUT", "/transactions/{id}")
}

func (h *Handler) BulkDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/transactions/bulk-delete"))
	defer timer.ObserveDuration()

	var req models.BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/transactions/bulk-delete")
		return
	}
	h.bulkDelete(w, r, req.IDs, "POST", "/transactions/bulk-delete")
}

// DeleteTransaction is a bulk delete of a single id.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	h.bulkDelete(w, r, []string{mux.Vars(r)["id"]}, "DELETE", "/transactions/{id}")
}

func (h *Handler) bulkDelete(w http.ResponseWriter, r *http.Request, ids []string, method, endpoint string) {
	res, err := h.ledger.BulkDeleteTransactions(r.Context(), OwnerID(r.Context()), ids)
	if err != nil {
		h.respondLedgerError(w, r, err, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, models.BulkDeleteResponse{
		Success:            true,
		Deleted:            res.Deleted,
		AffectedAccountIDs: res.AffectedAccountIDs,
	}, method, endpoint)
}
