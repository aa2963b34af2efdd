package store

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/rs/zerolog"
)

// Bills caches the session's recurring bills. Updates are applied locally
// first, like Goals.
type Bills struct {
	client remote.BillClient
	cache  *cache[[]domain.Bill]
}

// NewBills creates a bills store backed by client.
func NewBills(client remote.BillClient, log zerolog.Logger) *Bills {
	return &Bills{
		client: client,
		cache: newCache("bills", log, client.ListBills, func() []domain.Bill {
			return []domain.Bill{}
		}),
	}
}

// Get returns the current snapshot. Do not modify it.
func (s *Bills) Get() []domain.Bill {
	return s.cache.get()
}

// Version increments on every cache replacement.
func (s *Bills) Version() uint64 {
	return s.cache.getVersion()
}

// Subscribe registers fn to run after every change and returns its
// unsubscribe function.
func (s *Bills) Subscribe(fn func()) func() {
	return s.cache.subscribe(fn)
}

// EnsureInitialized loads the bills once; see Ledger.EnsureInitialized.
func (s *Bills) EnsureInitialized(ctx context.Context) error {
	return s.cache.ensureInitialized(ctx)
}

// Find returns the cached bill with id.
func (s *Bills) Find(id string) (domain.Bill, bool) {
	bills := s.Get()
	i := slices.IndexFunc(bills, billID(id))
	if i < 0 {
		return domain.Bill{}, false
	}
	return bills[i], true
}

// Add normalizes b, stores it and prepends the created bill.
func (s *Bills) Add(ctx context.Context, b domain.Bill) (domain.Bill, error) {
	if err := s.EnsureInitialized(ctx); err != nil {
		return domain.Bill{}, err
	}

	created, err := s.client.AddBill(ctx, b.Normalize())
	if err != nil {
		return domain.Bill{}, fmt.Errorf("Bills.Add: %w", err)
	}

	s.cache.update(func(cur []domain.Bill) ([]domain.Bill, bool) {
		next := make([]domain.Bill, 0, len(cur)+1)
		next = append(next, created)
		return append(next, cur...), true
	})
	return created, nil
}

// Update merges patch into the cached bill, notifies, then persists it.
func (s *Bills) Update(ctx context.Context, id string, patch domain.BillPatch) error {
	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}

	s.UpdateLocal(id, patch)
	if err := s.client.UpdateBill(ctx, id, patch); err != nil {
		return fmt.Errorf("Bills.Update: %s: %w", id, err)
	}
	return nil
}

// UpdateLocal merges patch into the cached bill without calling the backend.
func (s *Bills) UpdateLocal(id string, patch domain.BillPatch) {
	if patch.Empty() {
		return
	}
	s.cache.update(func(cur []domain.Bill) ([]domain.Bill, bool) {
		return replaceOne(cur, billID(id), func(b domain.Bill) (domain.Bill, bool) {
			return patch.Apply(b), true
		})
	})
}

// Remove deletes a bill and drops it from the cache.
func (s *Bills) Remove(ctx context.Context, id string) error {
	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}

	if err := s.client.RemoveBill(ctx, id); err != nil {
		return fmt.Errorf("Bills.Remove: %w", err)
	}

	s.cache.update(func(cur []domain.Bill) ([]domain.Bill, bool) {
		return without(cur, billID(id))
	})
	return nil
}

// Refresh replaces the cache with the backend's list.
func (s *Bills) Refresh(ctx context.Context) error {
	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}

	list, err := s.client.ListBills(ctx)
	if err != nil {
		return fmt.Errorf("Bills.Refresh: %w", err)
	}
	s.cache.replace(list)
	return nil
}

// MarkPaid records today as the bill's last payment. Linked goals are not
// touched; paying into a goal is up to the caller.
func (s *Bills) MarkPaid(ctx context.Context, id string, today civil.Date) error {
	return s.Update(ctx, id, domain.BillPatch{LastPaid: domain.Set(&today)})
}

// ResetPaid clears the bill's last payment, locally and in the backend.
func (s *Bills) ResetPaid(ctx context.Context, id string) error {
	return s.Update(ctx, id, domain.BillPatch{LastPaid: domain.Set[*civil.Date](nil)})
}

func billID(id string) func(domain.Bill) bool {
	return func(b domain.Bill) bool { return b.ID == id }
}
