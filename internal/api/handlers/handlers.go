package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/twocents/internal/api/middleware"
	"github.com/dvloznov/twocents/internal/notify"
	"github.com/dvloznov/twocents/internal/remote"
)

// maxBodyBytes bounds request bodies. Settings with many categories are the
// largest payload.
const maxBodyBytes = 1 << 20

// base resolves the session backend and publishes change events. Every
// handler embeds it.
type base struct {
	backends remote.Factory
	hub      *notify.Hub
	log      zerolog.Logger
}

func (b *base) backend(w http.ResponseWriter, r *http.Request) (remote.Backend, remote.Session, bool) {
	s, ok := middleware.GetSession(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Missing session")
		return nil, remote.Session{}, false
	}
	return b.backends(s), s, true
}

// changed tells other clients of the partition to refresh entity.
func (b *base) changed(r *http.Request, s remote.Session, entity string) {
	if b.hub == nil {
		return
	}
	e := notify.Event{
		Entity:    entity,
		Partition: s.PartitionKey(),
		Origin:    middleware.GetClientID(r.Context()),
	}
	if err := b.hub.Publish(e); err != nil {
		b.log.Warn().Err(err).Str("entity", entity).Msg("Failed to publish change event")
	}
}

// fail maps backend errors to status codes.
func (b *base) fail(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, remote.ErrInvalid):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		b.log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, http.StatusInternalServerError, msg)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// Register mounts every route on mux.
func Register(mux *http.ServeMux, backends remote.Factory, hub *notify.Hub, log zerolog.Logger) {
	b := base{backends: backends, hub: hub, log: log}

	tx := &TransactionsHandler{base: b}
	mux.HandleFunc("GET /api/transactions", tx.List)
	mux.HandleFunc("POST /api/transactions", tx.Add)
	mux.HandleFunc("DELETE /api/transactions", tx.Clear)
	mux.HandleFunc("DELETE /api/transactions/{id}", tx.Remove)

	goals := &GoalsHandler{base: b}
	mux.HandleFunc("GET /api/goals", goals.List)
	mux.HandleFunc("POST /api/goals", goals.Add)
	mux.HandleFunc("PATCH /api/goals/{id}", goals.Update)
	mux.HandleFunc("DELETE /api/goals/{id}", goals.Remove)

	bills := &BillsHandler{base: b}
	mux.HandleFunc("GET /api/bills", bills.List)
	mux.HandleFunc("POST /api/bills", bills.Add)
	mux.HandleFunc("PATCH /api/bills/{id}", bills.Update)
	mux.HandleFunc("DELETE /api/bills/{id}", bills.Remove)

	settings := &SettingsHandler{base: b}
	mux.HandleFunc("GET /api/settings", settings.Get)
	mux.HandleFunc("PATCH /api/settings", settings.Update)

	if hub != nil {
		changes := &ChangesHandler{hub: hub, log: log}
		mux.HandleFunc("GET /ws", changes.Serve)
	}
}
