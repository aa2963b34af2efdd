// Package inmemory is a process-local backend. It is safe for concurrent use
// and loses everything on restart; it serves tests and the "memory" backend
// kind used for demos.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/google/uuid"
)

// Database holds the records of every partition.
type Database struct {
	mu         sync.RWMutex
	partitions map[string]*partition
}

type partition struct {
	transactions []domain.Transaction // newest first
	goals        []domain.Goal        // insertion order
	bills        []domain.Bill        // insertion order
	settings     *domain.Settings
}

// NewDatabase creates an empty in-memory database.
func NewDatabase() *Database {
	return &Database{
		partitions: make(map[string]*partition),
	}
}

// Backend returns a view of db scoped to the session's partition.
func (db *Database) Backend(s remote.Session) *Backend {
	return &Backend{db: db, session: s}
}

// Factory adapts db to remote.Factory.
func (db *Database) Factory() remote.Factory {
	return func(s remote.Session) remote.Backend {
		return db.Backend(s)
	}
}

// part returns the partition for key, creating it. Callers hold db.mu.
func (db *Database) part(key string) *partition {
	p, ok := db.partitions[key]
	if !ok {
		p = &partition{}
		db.partitions[key] = p
	}
	return p
}

// Backend implements remote.Backend for one session.
type Backend struct {
	db      *Database
	session remote.Session
}

// Close implements remote.Backend. It is a no-op.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) key() string {
	return b.session.PartitionKey()
}

// ListTransactions implements remote.TransactionClient.
func (b *Backend) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	b.db.mu.RLock()
	defer b.db.mu.RUnlock()

	p, ok := b.db.partitions[b.key()]
	if !ok {
		return []domain.Transaction{}, nil
	}
	return slices.Clone(p.transactions), nil
}

// AddTransaction implements remote.TransactionClient.
func (b *Backend) AddTransaction(ctx context.Context, t domain.NewTransaction) (domain.Transaction, error) {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	tx := t.WithID(uuid.NewString(), b.session.HouseholdID)
	p := b.db.part(b.key())

	// Keep newest-first order; a new row goes before rows of the same date.
	i, _ := slices.BinarySearchFunc(p.transactions, tx, func(e, target domain.Transaction) int {
		if e.Date.After(target.Date) {
			return -1
		}
		return 1
	})
	p.transactions = slices.Insert(p.transactions, i, tx)
	return tx, nil
}

// RemoveTransaction implements remote.TransactionClient.
func (b *Backend) RemoveTransaction(ctx context.Context, id string) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	if p, ok := b.db.partitions[b.key()]; ok {
		p.transactions = slices.DeleteFunc(p.transactions, func(t domain.Transaction) bool { return t.ID == id })
	}
	return nil
}

// ClearTransactions implements remote.TransactionClient.
func (b *Backend) ClearTransactions(ctx context.Context) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	if p, ok := b.db.partitions[b.key()]; ok {
		p.transactions = nil
	}
	return nil
}

// ListGoals implements remote.GoalClient.
func (b *Backend) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	b.db.mu.RLock()
	defer b.db.mu.RUnlock()

	out := []domain.Goal{}
	if p, ok := b.db.partitions[b.key()]; ok {
		for _, g := range slices.Backward(p.goals) {
			out = append(out, copyGoal(g))
		}
	}
	return out, nil
}

// AddGoal implements remote.GoalClient.
func (b *Backend) AddGoal(ctx context.Context, g domain.Goal) (domain.Goal, error) {
	if g.Name == "" {
		return domain.Goal{}, fmt.Errorf("AddGoal: name is required: %w", remote.ErrInvalid)
	}

	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	g = copyGoal(g)
	g.ID = uuid.NewString()
	g.HouseholdID = b.session.HouseholdID
	p := b.db.part(b.key())
	p.goals = append(p.goals, g)
	return copyGoal(g), nil
}

// UpdateGoal implements remote.GoalClient.
func (b *Backend) UpdateGoal(ctx context.Context, id string, patch domain.GoalPatch) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	p, ok := b.db.partitions[b.key()]
	if !ok {
		return fmt.Errorf("UpdateGoal: %s: %w", id, remote.ErrNotFound)
	}
	i := slices.IndexFunc(p.goals, func(g domain.Goal) bool { return g.ID == id })
	if i < 0 {
		return fmt.Errorf("UpdateGoal: %s: %w", id, remote.ErrNotFound)
	}
	p.goals[i] = patch.Apply(p.goals[i])
	return nil
}

// RemoveGoal implements remote.GoalClient. Bills linked to the goal are
// unlinked, matching the embedded schema's ON DELETE SET NULL.
func (b *Backend) RemoveGoal(ctx context.Context, id string) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	p, ok := b.db.partitions[b.key()]
	if !ok {
		return nil
	}
	p.goals = slices.DeleteFunc(p.goals, func(g domain.Goal) bool { return g.ID == id })
	for i := range p.bills {
		if p.bills[i].LinkedGoalID == id {
			p.bills[i].LinkedGoalID = ""
		}
	}
	return nil
}

// ListBills implements remote.BillClient.
func (b *Backend) ListBills(ctx context.Context) ([]domain.Bill, error) {
	b.db.mu.RLock()
	defer b.db.mu.RUnlock()

	p, ok := b.db.partitions[b.key()]
	if !ok {
		return []domain.Bill{}, nil
	}
	out := slices.Clone(p.bills)
	slices.Reverse(out)
	return out, nil
}

// AddBill implements remote.BillClient.
func (b *Backend) AddBill(ctx context.Context, bill domain.Bill) (domain.Bill, error) {
	if bill.Name == "" {
		return domain.Bill{}, fmt.Errorf("AddBill: name is required: %w", remote.ErrInvalid)
	}

	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	bill.ID = uuid.NewString()
	bill.HouseholdID = b.session.HouseholdID
	p := b.db.part(b.key())
	p.bills = append(p.bills, bill)
	return bill, nil
}

// UpdateBill implements remote.BillClient.
func (b *Backend) UpdateBill(ctx context.Context, id string, patch domain.BillPatch) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	p, ok := b.db.partitions[b.key()]
	if !ok {
		return fmt.Errorf("UpdateBill: %s: %w", id, remote.ErrNotFound)
	}
	i := slices.IndexFunc(p.bills, func(bill domain.Bill) bool { return bill.ID == id })
	if i < 0 {
		return fmt.Errorf("UpdateBill: %s: %w", id, remote.ErrNotFound)
	}
	p.bills[i] = patch.Apply(p.bills[i])
	return nil
}

// RemoveBill implements remote.BillClient.
func (b *Backend) RemoveBill(ctx context.Context, id string) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	if p, ok := b.db.partitions[b.key()]; ok {
		p.bills = slices.DeleteFunc(p.bills, func(bill domain.Bill) bool { return bill.ID == id })
	}
	return nil
}

// GetSettings implements remote.SettingsClient.
func (b *Backend) GetSettings(ctx context.Context) (domain.Settings, error) {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	p := b.db.part(b.key())
	if p.settings == nil {
		s := domain.DefaultSettings()
		p.settings = &s
	}
	s := *p.settings
	s.Categories = slices.Clone(s.Categories)
	return s, nil
}

// UpdateSettings implements remote.SettingsClient.
func (b *Backend) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	p := b.db.part(b.key())
	base := domain.DefaultSettings()
	if p.settings != nil {
		base = *p.settings
	}
	next := patch.Apply(base)
	p.settings = &next
	return nil
}

func copyGoal(g domain.Goal) domain.Goal {
	g.LinkedCategories = slices.Clone(g.LinkedCategories)
	g.LinkedBillNames = slices.Clone(g.LinkedBillNames)
	return g
}

// Ensure Backend implements remote.Backend.
var _ remote.Backend = (*Backend)(nil)
