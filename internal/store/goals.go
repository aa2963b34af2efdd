package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/rs/zerolog"
)

// Goals caches the session's savings and debt goals.
//
// Add and Remove wait for the backend. Update applies the patch locally and
// notifies before persisting it; a failed write is returned to the caller and
// the local change stays until the next Refresh.
type Goals struct {
	client remote.GoalClient
	cache  *cache[[]domain.Goal]
}

// Contribution is the outcome of Contribute.
type Contribution struct {
	Goal domain.Goal
	// JustCompleted is true only for the contribution that completed the goal.
	JustCompleted bool
}

// NewGoals creates a goals store backed by client.
func NewGoals(client remote.GoalClient, log zerolog.Logger) *Goals {
	return &Goals{
		client: client,
		cache: newCache("goals", log, client.ListGoals, func() []domain.Goal {
			return []domain.Goal{}
		}),
	}
}

// Get returns the current snapshot. Do not modify it.
func (s *Goals) Get() []domain.Goal {
	return s.cache.get()
}

// Version increments on every cache replacement.
func (s *Goals) Version() uint64 {
	return s.cache.getVersion()
}

// Subscribe registers fn to run after every change and returns its
// unsubscribe function.
func (s *Goals) Subscribe(fn func()) func() {
	return s.cache.subscribe(fn)
}

// EnsureInitialized loads the goals once; see Ledger.EnsureInitialized.
func (s *Goals) EnsureInitialized(ctx context.Context) error {
	return s.cache.ensureInitialized(ctx)
}

// Find returns the cached goal with id.
func (s *Goals) Find(id string) (domain.Goal, bool) {
	goals := s.Get()
	i := slices.IndexFunc(goals, goalID(id))
	if i < 0 {
		return domain.Goal{}, false
	}
	return goals[i], true
}

// Add stores g, with a negative balance raised to zero, and prepends the
// created goal.
func (s *Goals) Add(ctx context.Context, g domain.Goal) (domain.Goal, error) {
	if err := s.EnsureInitialized(ctx); err != nil {
		return domain.Goal{}, err
	}

	g.Current = math.Max(0, g.Current)
	created, err := s.client.AddGoal(ctx, g)
	if err != nil {
		return domain.Goal{}, fmt.Errorf("Goals.Add: %w", err)
	}

	s.cache.update(func(cur []domain.Goal) ([]domain.Goal, bool) {
		next := make([]domain.Goal, 0, len(cur)+1)
		next = append(next, created)
		return append(next, cur...), true
	})
	return created, nil
}

// Update merges patch into the cached goal, notifies, then persists it. The
// backend is called even when the goal is not cached.
func (s *Goals) Update(ctx context.Context, id string, patch domain.GoalPatch) error {
	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}

	patch = patch.Normalize()
	s.UpdateLocal(id, patch)
	if err := s.client.UpdateGoal(ctx, id, patch); err != nil {
		return fmt.Errorf("Goals.Update: %s: %w", id, err)
	}
	return nil
}

// UpdateLocal merges patch into the cached goal without calling the backend.
func (s *Goals) UpdateLocal(id string, patch domain.GoalPatch) {
	if patch.Empty() {
		return
	}
	s.cache.update(func(cur []domain.Goal) ([]domain.Goal, bool) {
		return replaceOne(cur, goalID(id), func(g domain.Goal) (domain.Goal, bool) {
			return patch.Apply(g), true
		})
	})
}

// Remove deletes a goal and drops it from the cache.
func (s *Goals) Remove(ctx context.Context, id string) error {
	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}

	if err := s.client.RemoveGoal(ctx, id); err != nil {
		return fmt.Errorf("Goals.Remove: %w", err)
	}

	s.cache.update(func(cur []domain.Goal) ([]domain.Goal, bool) {
		return without(cur, goalID(id))
	})
	return nil
}

// Refresh replaces the cache with the backend's list.
func (s *Goals) Refresh(ctx context.Context) error {
	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}

	list, err := s.client.ListGoals(ctx)
	if err != nil {
		return fmt.Errorf("Goals.Refresh: %w", err)
	}
	s.cache.replace(list)
	return nil
}

// UpdateGoalBalance applies amount to the goal's balance: added for savings,
// subtracted for debt, never below zero. It does not touch CompletedAt.
func (s *Goals) UpdateGoalBalance(ctx context.Context, id string, amount float64) error {
	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}

	var patch domain.GoalPatch
	found := s.cache.update(func(cur []domain.Goal) ([]domain.Goal, bool) {
		return replaceOne(cur, goalID(id), func(g domain.Goal) (domain.Goal, bool) {
			patch = domain.GoalPatch{Current: domain.Set(g.BalanceAfter(amount))}
			return patch.Apply(g), true
		})
	})
	if !found {
		return fmt.Errorf("Goals.UpdateGoalBalance: %s: %w", id, remote.ErrNotFound)
	}

	if err := s.client.UpdateGoal(ctx, id, patch); err != nil {
		return fmt.Errorf("Goals.UpdateGoalBalance: %s: %w", id, err)
	}
	return nil
}

// Contribute applies amount like UpdateGoalBalance and, in the same step,
// stamps CompletedAt with now if this contribution is the one that completed
// the goal. Later contributions never move CompletedAt. Balance and
// completion are persisted in a single update.
func (s *Goals) Contribute(ctx context.Context, id string, amount float64, now time.Time) (Contribution, error) {
	if err := s.EnsureInitialized(ctx); err != nil {
		return Contribution{}, err
	}

	var (
		patch  domain.GoalPatch
		result Contribution
	)
	found := s.cache.update(func(cur []domain.Goal) ([]domain.Goal, bool) {
		return replaceOne(cur, goalID(id), func(g domain.Goal) (domain.Goal, bool) {
			patch = domain.GoalPatch{Current: domain.Set(g.BalanceAfter(amount))}
			next := patch.Apply(g)
			if completedNow(g, next) {
				patch.CompletedAt = domain.Set(domain.Ptr(now))
				next = patch.Apply(g)
				result.JustCompleted = true
			}
			result.Goal = next
			return next, true
		})
	})
	if !found {
		return Contribution{}, fmt.Errorf("Goals.Contribute: %s: %w", id, remote.ErrNotFound)
	}

	if err := s.client.UpdateGoal(ctx, id, patch); err != nil {
		return result, fmt.Errorf("Goals.Contribute: %s: %w", id, err)
	}
	return result, nil
}

// MarkCompletedIfTransitioning stamps CompletedAt with now when the goal was
// not complete before a change made elsewhere (wasComplete) and is complete
// now. It reports whether the goal was stamped. Goals already carrying a
// completion time are left alone.
func (s *Goals) MarkCompletedIfTransitioning(ctx context.Context, id string, wasComplete bool, now time.Time) (bool, error) {
	if err := s.EnsureInitialized(ctx); err != nil {
		return false, err
	}

	patch := domain.GoalPatch{CompletedAt: domain.Set(domain.Ptr(now))}
	stamped := s.cache.update(func(cur []domain.Goal) ([]domain.Goal, bool) {
		return replaceOne(cur, goalID(id), func(g domain.Goal) (domain.Goal, bool) {
			if wasComplete || !g.IsComplete() || g.CompletedAt != nil {
				return g, false
			}
			return patch.Apply(g), true
		})
	})
	if !stamped {
		return false, nil
	}

	if err := s.client.UpdateGoal(ctx, id, patch); err != nil {
		return true, fmt.Errorf("Goals.MarkCompletedIfTransitioning: %s: %w", id, err)
	}
	return true, nil
}

// completedNow is the completion edge: incomplete before, complete after and
// never stamped.
func completedNow(before, after domain.Goal) bool {
	return !before.IsComplete() && after.IsComplete() && before.CompletedAt == nil
}

func goalID(id string) func(domain.Goal) bool {
	return func(g domain.Goal) bool { return g.ID == id }
}
