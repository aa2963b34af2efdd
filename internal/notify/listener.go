package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dvloznov/twocents/internal/refresh"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Listener keeps a websocket open to the hub and refreshes the matching
// store for every event not written by this client. It reconnects with
// exponential backoff until its context ends.
type Listener struct {
	url      string
	header   http.Header
	clientID string
	stores   map[string]refresh.Refresher
	dialer   *websocket.Dialer
	log      zerolog.Logger
}

// NewListener creates a listener for url. header is sent on every dial and
// carries the session; stores maps entity names to the store to refresh.
func NewListener(url string, header http.Header, clientID string, stores map[string]refresh.Refresher, log zerolog.Logger) *Listener {
	return &Listener{
		url:      url,
		header:   header,
		clientID: clientID,
		stores:   stores,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:      log.With().Str("component", "listener").Logger(),
	}
}

// Run blocks until ctx ends.
func (l *Listener) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		connected, err := l.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = minBackoff
		}
		l.log.Debug().Err(err).Dur("retry_in", backoff).Msg("Change stream disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// session runs one connection until it fails. It reports whether the dial
// succeeded.
func (l *Listener) session(ctx context.Context) (bool, error) {
	conn, _, err := l.dialer.DialContext(ctx, l.url, l.header)
	if err != nil {
		return false, fmt.Errorf("Listener: dial: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	l.log.Debug().Str("url", l.url).Msg("Change stream connected")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("Listener: read: %w", err)
		}

		var e Event
		if err := json.Unmarshal(msg, &e); err != nil {
			l.log.Debug().Err(err).Msg("Ignoring malformed event")
			continue
		}
		l.Handle(ctx, e)
	}
}

// Handle refreshes the store for e unless this client wrote it.
func (l *Listener) Handle(ctx context.Context, e Event) {
	if e.Origin != "" && e.Origin == l.clientID {
		return
	}
	s, ok := l.stores[e.Entity]
	if !ok {
		return
	}
	if err := s.Refresh(ctx); err != nil {
		l.log.Debug().Err(err).Str("entity", e.Entity).Msg("Refresh after change event failed")
	}
}
