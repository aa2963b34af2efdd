package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/twocents/internal/api/middleware"
	"github.com/dvloznov/twocents/internal/api/wire"
	"github.com/dvloznov/twocents/internal/notify"
)

// SettingsHandler handles the settings singleton.
type SettingsHandler struct {
	base
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	backend, _, ok := h.backend(w, r)
	if !ok {
		return
	}

	s, err := backend.GetSettings(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to get settings")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, wire.FromSettings(s))
}

// Update handles PATCH /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	backend, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	var req wire.Patch
	if !decode(w, r, &req) {
		return
	}
	patch, err := wire.DecodeSettingsPatch(req)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := backend.UpdateSettings(r.Context(), patch); err != nil {
		h.fail(w, err, "Failed to update settings")
		return
	}

	h.changed(r, s, notify.EntitySettings)
	w.WriteHeader(http.StatusNoContent)
}

// ChangesHandler streams change events over a websocket.
type ChangesHandler struct {
	hub *notify.Hub
	log zerolog.Logger
}

// Serve handles GET /ws
func (h *ChangesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.GetSession(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Missing session")
		return
	}

	if err := h.hub.Serve(w, r, s.PartitionKey()); err != nil {
		h.log.Debug().Err(err).Str("partition", s.PartitionKey()).Msg("Change stream closed")
	}
}
