package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addGoal(t *testing.T, s *Goals, g domain.Goal) domain.Goal {
	t.Helper()
	created, err := s.Add(context.Background(), g)
	require.NoError(t, err)
	return created
}

func TestGoals_UpdateGoalBalanceSign(t *testing.T) {
	ctx := context.Background()
	m := newMockBackend()
	s := NewGoals(m, testLogger())

	savings := addGoal(t, s, domain.Goal{Name: "Trip", Current: 40, Target: 100, Category: domain.GoalSavings})
	debt := addGoal(t, s, domain.Goal{Name: "Card", Current: 500, IsDebt: true, OriginalDebt: domain.Ptr(500.0), Category: domain.GoalDebt})
	small := addGoal(t, s, domain.Goal{Name: "Loan", Current: 50, IsDebt: true, Category: domain.GoalDebt})

	require.NoError(t, s.UpdateGoalBalance(ctx, savings.ID, 25))
	require.NoError(t, s.UpdateGoalBalance(ctx, debt.ID, 100))
	require.NoError(t, s.UpdateGoalBalance(ctx, small.ID, 100))

	got, _ := s.Find(savings.ID)
	assert.Equal(t, 65.0, got.Current)
	got, _ = s.Find(debt.ID)
	assert.Equal(t, 400.0, got.Current)
	got, _ = s.Find(small.ID)
	assert.Equal(t, 0.0, got.Current)
	// completion is not stamped by the balance update
	assert.Nil(t, got.CompletedAt)

	// the backend saw the same values
	remoteGoals, err := m.Backend.ListGoals(ctx)
	require.NoError(t, err)
	for _, g := range remoteGoals {
		local, ok := s.Find(g.ID)
		require.True(t, ok)
		assert.Equal(t, local.Current, g.Current)
	}

	err = s.UpdateGoalBalance(ctx, "missing", 1)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestGoals_UpdateIsOptimistic(t *testing.T) {
	ctx := context.Background()
	m := newMockBackend()
	s := NewGoals(m, testLogger())
	g := addGoal(t, s, domain.Goal{Name: "Car", Target: 1000})

	var seen string
	s.Subscribe(func() {
		cur, _ := s.Find(g.ID)
		seen = cur.Name
	})
	m.UpdateGoalFunc = func(ctx context.Context, id string, patch domain.GoalPatch) error {
		// the cache already holds the change when the backend is called
		assert.Equal(t, "New car", seen)
		return errors.New("write failed")
	}

	err := s.Update(ctx, g.ID, domain.GoalPatch{Name: domain.Set("New car")})
	require.Error(t, err)

	// no rollback: the local change stays until a refresh
	cur, _ := s.Find(g.ID)
	assert.Equal(t, "New car", cur.Name)

	require.NoError(t, s.Refresh(ctx))
	cur, _ = s.Find(g.ID)
	assert.Equal(t, "Car", cur.Name)
}

func TestGoals_ContributeStampsCompletionOnce(t *testing.T) {
	ctx := context.Background()
	m := newMockBackend()
	s := NewGoals(m, testLogger())
	g := addGoal(t, s, domain.Goal{Name: "Fund", Current: 80, Target: 100})

	first := time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC)
	c, err := s.Contribute(ctx, g.ID, 10, first)
	require.NoError(t, err)
	assert.False(t, c.JustCompleted)
	assert.Nil(t, c.Goal.CompletedAt)

	c, err = s.Contribute(ctx, g.ID, 15, first)
	require.NoError(t, err)
	assert.True(t, c.JustCompleted)
	require.NotNil(t, c.Goal.CompletedAt)
	assert.Equal(t, first, *c.Goal.CompletedAt)

	later := first.Add(48 * time.Hour)
	c, err = s.Contribute(ctx, g.ID, 5, later)
	require.NoError(t, err)
	assert.False(t, c.JustCompleted)
	assert.Equal(t, 110.0, c.Goal.Current)
	assert.Equal(t, first, *c.Goal.CompletedAt)

	// one update per contribution, completion included
	assert.Equal(t, int32(3), m.updateGoalCalls.Load())
	stored, err := m.Backend.ListGoals(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored[0].CompletedAt)
	assert.Equal(t, first, *stored[0].CompletedAt)
}

func TestGoals_ContributeToDebt(t *testing.T) {
	ctx := context.Background()
	s := NewGoals(newMockBackend(), testLogger())
	g := addGoal(t, s, domain.Goal{Name: "Card", Current: 100, IsDebt: true, OriginalDebt: domain.Ptr(100.0)})

	now := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	c, err := s.Contribute(ctx, g.ID, 150, now)
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Goal.Current)
	assert.True(t, c.JustCompleted)
}

func TestGoals_MarkCompletedIfTransitioning(t *testing.T) {
	ctx := context.Background()
	s := NewGoals(newMockBackend(), testLogger())
	g := addGoal(t, s, domain.Goal{Name: "Fund", Current: 90, Target: 100})
	now := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)

	wasComplete := g.IsComplete()
	require.NoError(t, s.Update(ctx, g.ID, domain.GoalPatch{Current: domain.Set(100.0)}))

	stamped, err := s.MarkCompletedIfTransitioning(ctx, g.ID, wasComplete, now)
	require.NoError(t, err)
	assert.True(t, stamped)

	stamped, err = s.MarkCompletedIfTransitioning(ctx, g.ID, false, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, stamped)

	cur, _ := s.Find(g.ID)
	assert.Equal(t, now, *cur.CompletedAt)
}

func TestGoals_RemoveAndUpdateLocal(t *testing.T) {
	ctx := context.Background()
	m := newMockBackend()
	s := NewGoals(m, testLogger())
	a := addGoal(t, s, domain.Goal{Name: "A"})
	b := addGoal(t, s, domain.Goal{Name: "B"})

	// newest first
	assert.Equal(t, b.ID, s.Get()[0].ID)

	s.UpdateLocal(a.ID, domain.GoalPatch{Color: domain.Set("#10b981")})
	cur, _ := s.Find(a.ID)
	assert.Equal(t, "#10b981", cur.Color)
	assert.Equal(t, int32(0), m.updateGoalCalls.Load())

	snap := s.Get()
	s.UpdateLocal("missing", domain.GoalPatch{Color: domain.Set("#000")})
	assert.True(t, sameSlice(snap, s.Get()))

	require.NoError(t, s.Remove(ctx, a.ID))
	_, ok := s.Find(a.ID)
	assert.False(t, ok)
	assert.Len(t, s.Get(), 1)
}

func TestGoals_RefreshKeepsAddOrder(t *testing.T) {
	ctx := context.Background()
	s := NewGoals(newMockBackend(), testLogger())
	a := addGoal(t, s, domain.Goal{Name: "A"})
	b := addGoal(t, s, domain.Goal{Name: "B"})
	c := addGoal(t, s, domain.Goal{Name: "C"})

	ids := func() []string {
		var out []string
		for _, g := range s.Get() {
			out = append(out, g.ID)
		}
		return out
	}
	want := []string{c.ID, b.ID, a.ID}
	assert.Equal(t, want, ids())

	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, want, ids())
}

func TestGoals_BalanceNeverNegative(t *testing.T) {
	ctx := context.Background()
	m := newMockBackend()
	s := NewGoals(m, testLogger())
	g := addGoal(t, s, domain.Goal{Name: "Trip", Target: 100, Current: -10})
	assert.Equal(t, 0.0, g.Current)

	require.NoError(t, s.Update(ctx, g.ID, domain.GoalPatch{Current: domain.Set(-25.0)}))
	cur, _ := s.Find(g.ID)
	assert.Equal(t, 0.0, cur.Current)

	stored, err := m.Backend.ListGoals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stored[0].Current)

	s.UpdateLocal(g.ID, domain.GoalPatch{Current: domain.Set(-1.0)})
	cur, _ = s.Find(g.ID)
	assert.Equal(t, 0.0, cur.Current)
}
