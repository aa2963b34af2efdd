package store

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/dvloznov/twocents/internal/remote/inmemory"
	"github.com/rs/zerolog"
)

// mockBackend delegates to an in-memory backend unless a Func override is
// set, and counts list calls.
type mockBackend struct {
	*inmemory.Backend

	ListTransactionsFunc func(ctx context.Context) ([]domain.Transaction, error)
	AddTransactionFunc   func(ctx context.Context, t domain.NewTransaction) (domain.Transaction, error)
	ListGoalsFunc        func(ctx context.Context) ([]domain.Goal, error)
	UpdateGoalFunc       func(ctx context.Context, id string, patch domain.GoalPatch) error
	UpdateSettingsFunc   func(ctx context.Context, patch domain.SettingsPatch) error

	listTransactionsCalls atomic.Int32
	updateGoalCalls       atomic.Int32
}

func newMockBackend() *mockBackend {
	return &mockBackend{Backend: inmemory.NewDatabase().Backend(remote.LocalSession)}
}

func (m *mockBackend) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	m.listTransactionsCalls.Add(1)
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx)
	}
	return m.Backend.ListTransactions(ctx)
}

func (m *mockBackend) AddTransaction(ctx context.Context, t domain.NewTransaction) (domain.Transaction, error) {
	if m.AddTransactionFunc != nil {
		return m.AddTransactionFunc(ctx, t)
	}
	return m.Backend.AddTransaction(ctx, t)
}

func (m *mockBackend) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	if m.ListGoalsFunc != nil {
		return m.ListGoalsFunc(ctx)
	}
	return m.Backend.ListGoals(ctx)
}

func (m *mockBackend) UpdateGoal(ctx context.Context, id string, patch domain.GoalPatch) error {
	m.updateGoalCalls.Add(1)
	if m.UpdateGoalFunc != nil {
		return m.UpdateGoalFunc(ctx, id, patch)
	}
	return m.Backend.UpdateGoal(ctx, id, patch)
}

func (m *mockBackend) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) error {
	if m.UpdateSettingsFunc != nil {
		return m.UpdateSettingsFunc(ctx, patch)
	}
	return m.Backend.UpdateSettings(ctx, patch)
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// sameSlice reports whether a and b are the same snapshot.
func sameSlice[T any](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}
