// Package notify pushes change events from the API server to connected
// clients so their stores refresh without waiting for the next poll.
package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/olahol/melody"
	"github.com/rs/zerolog"
)

// Entities named in events.
const (
	EntityTransactions = "transactions"
	EntityGoals        = "goals"
	EntityBills        = "bills"
	EntitySettings     = "settings"
)

const partitionKey = "partition"

// Event tells clients that an entity family changed in a partition. Origin
// is the client id of the writer, so it can ignore its own events.
type Event struct {
	Entity    string    `json:"entity"`
	Partition string    `json:"partition"`
	Origin    string    `json:"origin,omitempty"`
	At        time.Time `json:"at"`
}

// Hub fans events out to websocket sessions of the same partition.
type Hub struct {
	m   *melody.Melody
	log zerolog.Logger
}

// NewHub creates a hub.
func NewHub(log zerolog.Logger) *Hub {
	m := melody.New()
	m.Config.MaxMessageSize = 4096
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	h := &Hub{m: m, log: log.With().Str("component", "notify").Logger()}

	m.HandleConnect(func(s *melody.Session) {
		p, _ := s.Get(partitionKey)
		h.log.Debug().Interface("partition", p).Msg("Client connected")
	})
	m.HandleDisconnect(func(s *melody.Session) {
		p, _ := s.Get(partitionKey)
		h.log.Debug().Interface("partition", p).Msg("Client disconnected")
	})
	m.HandleError(func(s *melody.Session, err error) {
		h.log.Warn().Err(err).Msg("WebSocket error")
	})

	return h
}

// Serve upgrades the request and subscribes the connection to partition.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, partition string) error {
	if err := h.m.HandleRequestWithKeys(w, r, map[string]any{partitionKey: partition}); err != nil {
		return fmt.Errorf("Hub.Serve: %w", err)
	}
	return nil
}

// Publish sends e to every session subscribed to e.Partition.
func (h *Hub) Publish(e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	msg, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("Hub.Publish: marshal: %w", err)
	}

	err = h.m.BroadcastFilter(msg, func(s *melody.Session) bool {
		p, ok := s.Get(partitionKey)
		return ok && p == e.Partition
	})
	if err != nil {
		return fmt.Errorf("Hub.Publish: %w", err)
	}
	return nil
}

// Sessions returns the number of connected clients.
func (h *Hub) Sessions() int {
	return h.m.Len()
}

// Close disconnects every client.
func (h *Hub) Close() error {
	return h.m.Close()
}
