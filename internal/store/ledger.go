package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/rs/zerolog"
)

// Ledger caches the session's transactions, newest first.
//
// Add and Remove change the cache only after the backend call succeeds.
// Concurrent adds each prepend their own result when their call returns, so
// rapid adds appear in completion order until the next Refresh restores the
// backend's date order.
type Ledger struct {
	client remote.TransactionClient
	cache  *cache[[]domain.Transaction]
}

// NewLedger creates a ledger store backed by client.
func NewLedger(client remote.TransactionClient, log zerolog.Logger) *Ledger {
	return &Ledger{
		client: client,
		cache: newCache("ledger", log, client.ListTransactions, func() []domain.Transaction {
			return []domain.Transaction{}
		}),
	}
}

// Get returns the current snapshot. Do not modify it.
func (l *Ledger) Get() []domain.Transaction {
	return l.cache.get()
}

// Version increments on every cache replacement.
func (l *Ledger) Version() uint64 {
	return l.cache.getVersion()
}

// Subscribe registers fn to run after every change. The returned function
// unsubscribes; calling it more than once is harmless.
func (l *Ledger) Subscribe(fn func()) func() {
	return l.cache.subscribe(fn)
}

// EnsureInitialized loads the ledger once. Concurrent callers share the same
// load. A failed load leaves the ledger empty and is not reported; the only
// error is ctx's when the caller stops waiting.
func (l *Ledger) EnsureInitialized(ctx context.Context) error {
	return l.cache.ensureInitialized(ctx)
}

// Add stores t and prepends the created transaction.
func (l *Ledger) Add(ctx context.Context, t domain.NewTransaction) (domain.Transaction, error) {
	if err := l.EnsureInitialized(ctx); err != nil {
		return domain.Transaction{}, err
	}

	created, err := l.client.AddTransaction(ctx, t)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Ledger.Add: %w", err)
	}

	l.cache.update(func(cur []domain.Transaction) ([]domain.Transaction, bool) {
		next := make([]domain.Transaction, 0, len(cur)+1)
		next = append(next, created)
		return append(next, cur...), true
	})
	return created, nil
}

// Remove deletes a transaction and drops it from the cache.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	if err := l.EnsureInitialized(ctx); err != nil {
		return err
	}

	if err := l.client.RemoveTransaction(ctx, id); err != nil {
		return fmt.Errorf("Ledger.Remove: %w", err)
	}

	l.cache.update(func(cur []domain.Transaction) ([]domain.Transaction, bool) {
		return without(cur, func(t domain.Transaction) bool { return t.ID == id })
	})
	return nil
}

// Clear deletes every transaction in the session's partition with one call.
func (l *Ledger) Clear(ctx context.Context) error {
	if err := l.EnsureInitialized(ctx); err != nil {
		return err
	}

	if err := l.client.ClearTransactions(ctx); err != nil {
		return fmt.Errorf("Ledger.Clear: %w", err)
	}

	l.cache.replace([]domain.Transaction{})
	return nil
}

// Refresh replaces the cache with the backend's list. On error the cache is
// left as it was.
func (l *Ledger) Refresh(ctx context.Context) error {
	if err := l.EnsureInitialized(ctx); err != nil {
		return err
	}

	list, err := l.client.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("Ledger.Refresh: %w", err)
	}
	l.cache.replace(list)
	return nil
}

// without returns cur minus the elements matching drop, reporting whether
// anything was removed. cur is never modified.
func without[T any](cur []T, drop func(T) bool) ([]T, bool) {
	if !slices.ContainsFunc(cur, drop) {
		return cur, false
	}
	next := make([]T, 0, len(cur))
	for _, v := range cur {
		if !drop(v) {
			next = append(next, v)
		}
	}
	return next, true
}

// replaceOne returns a copy of cur with the first element matching match
// rewritten by fn. It reports false, leaving cur untouched, when nothing
// matches or fn declines the change.
func replaceOne[T any](cur []T, match func(T) bool, fn func(T) (T, bool)) ([]T, bool) {
	i := slices.IndexFunc(cur, match)
	if i < 0 {
		return cur, false
	}
	v, ok := fn(cur[i])
	if !ok {
		return cur, false
	}
	next := slices.Clone(cur)
	next[i] = v
	return next, true
}
