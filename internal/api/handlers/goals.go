package handlers

import (
	"net/http"

	"github.com/dvloznov/twocents/internal/api/middleware"
	"github.com/dvloznov/twocents/internal/api/wire"
	"github.com/dvloznov/twocents/internal/notify"
)

// GoalsHandler handles goal endpoints.
type GoalsHandler struct {
	base
}

// List handles GET /api/goals
func (h *GoalsHandler) List(w http.ResponseWriter, r *http.Request) {
	backend, _, ok := h.backend(w, r)
	if !ok {
		return
	}

	goals, err := backend.ListGoals(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to list goals")
		return
	}

	out := make([]wire.Goal, 0, len(goals))
	for _, g := range goals {
		out = append(out, wire.FromGoal(g))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// Add handles POST /api/goals
func (h *GoalsHandler) Add(w http.ResponseWriter, r *http.Request) {
	backend, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	var req wire.Goal
	if !decode(w, r, &req) {
		return
	}

	g, err := backend.AddGoal(r.Context(), req.Domain())
	if err != nil {
		h.fail(w, err, "Failed to add goal")
		return
	}

	h.changed(r, s, notify.EntityGoals)
	middleware.WriteJSON(w, http.StatusCreated, wire.FromGoal(g))
}

// Update handles PATCH /api/goals/{id}
func (h *GoalsHandler) Update(w http.ResponseWriter, r *http.Request) {
	backend, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	var req wire.Patch
	if !decode(w, r, &req) {
		return
	}
	patch, err := wire.DecodeGoalPatch(req)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := backend.UpdateGoal(r.Context(), r.PathValue("id"), patch); err != nil {
		h.fail(w, err, "Failed to update goal")
		return
	}

	h.changed(r, s, notify.EntityGoals)
	w.WriteHeader(http.StatusNoContent)
}

// Remove handles DELETE /api/goals/{id}. Bills linked to the goal are
// unlinked, so bill listeners are told as well.
func (h *GoalsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	backend, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	if err := backend.RemoveGoal(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, err, "Failed to remove goal")
		return
	}

	h.changed(r, s, notify.EntityGoals)
	h.changed(r, s, notify.EntityBills)
	w.WriteHeader(http.StatusNoContent)
}
