// Package store holds the synchronized in-memory caches that sit between a
// remote backend and readers that need a consistent snapshot.
//
// Every store follows the same contract. Get returns the current snapshot,
// which is replaced wholesale on every change and never modified in place, so
// two reads with no change in between return the same slice or pointer and a
// reader holding an old snapshot is never affected by writers. Callers must
// treat snapshots as read-only. Listeners registered with Subscribe run after
// every change in the goroutine that made it, outside the store's lock.
package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// cache is the state shared by every store: one value, a version counter,
// a one-shot initialization guard and a listener set.
type cache[T any] struct {
	name string
	log  zerolog.Logger
	load func(ctx context.Context) (T, error)
	zero func() T

	mu        sync.RWMutex
	current   T
	version   uint64
	initDone  chan struct{}
	listeners map[uint64]func()
	nextID    uint64
}

func newCache[T any](name string, log zerolog.Logger, load func(context.Context) (T, error), zero func() T) *cache[T] {
	return &cache[T]{
		name:      name,
		log:       log.With().Str("store", name).Logger(),
		load:      load,
		zero:      zero,
		current:   zero(),
		listeners: make(map[uint64]func()),
	}
}

func (c *cache[T]) get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *cache[T]) getVersion() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *cache[T]) subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// ensureInitialized starts the first load and waits for it. The load runs
// detached from the caller's cancellation so one impatient caller does not
// fail it for everyone; ctx only bounds how long this caller waits.
func (c *cache[T]) ensureInitialized(ctx context.Context) error {
	c.mu.Lock()
	done := c.initDone
	if done == nil {
		done = make(chan struct{})
		c.initDone = done
		go c.initialize(context.WithoutCancel(ctx), done)
	}
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *cache[T]) initialize(ctx context.Context, done chan struct{}) {
	defer close(done)

	v, err := c.load(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to load, starting empty")
		v = c.zero()
	}
	c.replace(v)
}

// replace swaps in v and notifies listeners.
func (c *cache[T]) replace(v T) {
	c.set(v)
	c.emit()
}

// set swaps in v without notifying; the caller must emit.
func (c *cache[T]) set(v T) {
	c.mu.Lock()
	c.current = v
	c.version++
	c.mu.Unlock()
}

// update computes the next value from the current one under the lock. When fn
// reports no change the snapshot and version are left alone and nobody is
// notified.
func (c *cache[T]) update(fn func(cur T) (T, bool)) bool {
	changed := c.swap(fn)
	if changed {
		c.emit()
	}
	return changed
}

// swap is update without the notification.
func (c *cache[T]) swap(fn func(cur T) (T, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, changed := fn(c.current)
	if changed {
		c.current = next
		c.version++
	}
	return changed
}

func (c *cache[T]) emit() {
	c.mu.RLock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
