package handlers

import (
	"net/http"

	"github.com/dvloznov/twocents/internal/api/middleware"
	"github.com/dvloznov/twocents/internal/api/wire"
	"github.com/dvloznov/twocents/internal/notify"
)

// TransactionsHandler handles ledger endpoints.
type TransactionsHandler struct {
	base
}

// List handles GET /api/transactions
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	backend, _, ok := h.backend(w, r)
	if !ok {
		return
	}

	txs, err := backend.ListTransactions(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to list transactions")
		return
	}

	out := make([]wire.Transaction, 0, len(txs))
	for _, t := range txs {
		out = append(out, wire.FromTransaction(t))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// Add handles POST /api/transactions
func (h *TransactionsHandler) Add(w http.ResponseWriter, r *http.Request) {
	backend, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	var req wire.NewTransaction
	if !decode(w, r, &req) {
		return
	}
	if !req.Date.IsValid() {
		middleware.WriteError(w, http.StatusBadRequest, "date is required")
		return
	}

	t, err := backend.AddTransaction(r.Context(), req.Domain())
	if err != nil {
		h.fail(w, err, "Failed to add transaction")
		return
	}

	h.changed(r, s, notify.EntityTransactions)
	middleware.WriteJSON(w, http.StatusCreated, wire.FromTransaction(t))
}

// Remove handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	backend, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	if err := backend.RemoveTransaction(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, err, "Failed to remove transaction")
		return
	}

	h.changed(r, s, notify.EntityTransactions)
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/transactions
func (h *TransactionsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	backend, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	if err := backend.ClearTransactions(r.Context()); err != nil {
		h.fail(w, err, "Failed to clear transactions")
		return
	}

	h.log.Info().Str("partition", s.PartitionKey()).Msg("Transactions cleared")
	h.changed(r, s, notify.EntityTransactions)
	w.WriteHeader(http.StatusNoContent)
}
