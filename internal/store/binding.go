package store

import "sync"

// Source is anything a Binding can watch. Every store implements it.
type Source[T any] interface {
	Get() T
	Version() uint64
	Subscribe(fn func()) func()
}

// Binding delivers a store's snapshots to one consumer. Updates carries only
// snapshots whose version differs from the last one delivered; if the
// consumer falls behind, older undelivered snapshots are dropped in favor of
// the newest.
type Binding[T any] struct {
	src         Source[T]
	updates     chan T
	unsubscribe func()

	mu     sync.Mutex
	seen   uint64
	closed bool
}

// Bind subscribes to src. The current snapshot is available from Current
// right away; Updates only receives later changes.
func Bind[T any](src Source[T]) *Binding[T] {
	b := &Binding[T]{
		src:     src,
		updates: make(chan T, 1),
		seen:    src.Version(),
	}
	b.unsubscribe = src.Subscribe(b.changed)
	return b
}

// Updates returns the channel of changed snapshots. It is closed by Close.
func (b *Binding[T]) Updates() <-chan T {
	return b.updates
}

// Current returns the source's latest snapshot.
func (b *Binding[T]) Current() T {
	return b.src.Get()
}

// Close unsubscribes and closes Updates.
func (b *Binding[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.unsubscribe()
	close(b.updates)
}

func (b *Binding[T]) changed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	v := b.src.Version()
	if v <= b.seen {
		return
	}
	b.seen = v

	snap := b.src.Get()
	select {
	case <-b.updates:
	default:
	}
	b.updates <- snap
}
