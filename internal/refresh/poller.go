// Package refresh reconciles stores with the backend on a fixed interval.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Refresher is a store that can reload itself from the backend.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Target is one store the poller refreshes. Enabled is consulted on every
// tick; a nil Enabled means always.
type Target struct {
	Name    string
	Store   Refresher
	Enabled func() bool
}

// Poller refreshes its targets every interval until stopped. Refresh errors
// are logged at debug level and otherwise ignored.
type Poller struct {
	interval time.Duration
	targets  []Target
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a stopped poller.
func NewPoller(interval time.Duration, log zerolog.Logger, targets ...Target) *Poller {
	return &Poller{
		interval: interval,
		targets:  targets,
		log:      log.With().Str("component", "poller").Logger(),
	}
}

// Start begins polling in the background. Calling Start on a running poller
// does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop ends polling and waits for an in-flight tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick refreshes every enabled target once.
func (p *Poller) Tick(ctx context.Context) {
	for _, t := range p.targets {
		if t.Enabled != nil && !t.Enabled() {
			continue
		}
		if err := t.Store.Refresh(ctx); err != nil {
			p.log.Debug().Err(err).Str("target", t.Name).Msg("Background refresh failed")
		}
	}
}
