package handlers

import (
	"net/http"

	"github.com/dvloznov/twocents/internal/api/middleware"
	"github.com/dvloznov/twocents/internal/api/wire"
	"github.com/dvloznov/twocents/internal/notify"
)

// BillsHandler handles recurring bill endpoints.
type BillsHandler struct {
	base
}

// List handles GET /api/bills
func (h *BillsHandler) List(w http.ResponseWriter, r *http.Request) {
	backend, _, ok := h.backend(w, r)
	if !ok {
		return
	}

	bills, err := backend.ListBills(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to list bills")
		return
	}

	out := make([]wire.Bill, 0, len(bills))
	for _, b := range bills {
		out = append(out, wire.FromBill(b))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// Add handles POST /api/bills
func (h *BillsHandler) Add(w http.ResponseWriter, r *http.Request) {
	backend, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	var req wire.Bill
	if !decode(w, r, &req) {
		return
	}

	b, err := backend.AddBill(r.Context(), req.Domain().Normalize())
	if err != nil {
		h.fail(w, err, "Failed to add bill")
		return
	}

	h.changed(r, s, notify.EntityBills)
	middleware.WriteJSON(w, http.StatusCreated, wire.FromBill(b))
}

// Update handles PATCH /api/bills/{id}
func (h *BillsHandler) Update(w http.ResponseWriter, r *http.Request) {
	backend, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	var req wire.Patch
	if !decode(w, r, &req) {
		return
	}
	patch, err := wire.DecodeBillPatch(req)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := backend.UpdateBill(r.Context(), r.PathValue("id"), patch); err != nil {
		h.fail(w, err, "Failed to update bill")
		return
	}

	h.changed(r, s, notify.EntityBills)
	w.WriteHeader(http.StatusNoContent)
}

// Remove handles DELETE /api/bills/{id}
func (h *BillsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	backend, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	if err := backend.RemoveBill(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, err, "Failed to remove bill")
		return
	}

	h.changed(r, s, notify.EntityBills)
	w.WriteHeader(http.StatusNoContent)
}
