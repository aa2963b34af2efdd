package domain

import (
	"math"
	"time"

	"cloud.google.com/go/civil"
)

// GoalCategory classifies a goal for display and grouping.
type GoalCategory string

const (
	GoalEmergency  GoalCategory = "emergency"
	GoalSavings    GoalCategory = "savings"
	GoalFun        GoalCategory = "fun"
	GoalInvestment GoalCategory = "investment"
	GoalDebt       GoalCategory = "debt"
	GoalOther      GoalCategory = "other"
)

// Valid reports whether c is one of the known categories.
func (c GoalCategory) Valid() bool {
	switch c {
	case GoalEmergency, GoalSavings, GoalFun, GoalInvestment, GoalDebt, GoalOther:
		return true
	}
	return false
}

// Goal is a savings target or a debt being paid down.
//
// For savings goals Current grows towards Target. For debt goals Current is
// the outstanding balance and shrinks towards zero; Target is unused and
// OriginalDebt snapshots the balance at creation. CompletedAt is set once, on
// the first transition from incomplete to complete.
type Goal struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Current          float64      `json:"current"`
	Target           float64      `json:"target"`
	Category         GoalCategory `json:"category"`
	TargetDate       *civil.Date  `json:"targetDate,omitempty"`
	Color            string       `json:"color"`
	IsDebt           bool         `json:"isDebt,omitempty"`
	OriginalDebt     *float64     `json:"originalDebt,omitempty"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
	LinkedCategories []string     `json:"linkedCategories,omitempty"`
	LinkedBillNames  []string     `json:"linkedBillNames,omitempty"`
	HouseholdID      string       `json:"household_id,omitempty"`
}

// IsComplete is the completion predicate for the goal's mode.
func (g Goal) IsComplete() bool {
	if g.IsDebt {
		return g.Current <= 0
	}
	return g.Current >= g.Target
}

// BalanceAfter returns the balance after applying amount: contributions add to
// savings, payments subtract from debt. The result never goes below zero.
func (g Goal) BalanceAfter(amount float64) float64 {
	next := g.Current + amount
	if g.IsDebt {
		next = g.Current - amount
	}
	if next < 0 {
		return 0
	}
	return next
}

// Progress returns completion as a fraction in [0, 1].
func (g Goal) Progress() float64 {
	if g.IsDebt {
		if g.OriginalDebt == nil || *g.OriginalDebt <= 0 {
			if g.Current <= 0 {
				return 1
			}
			return 0
		}
		return clamp01((*g.OriginalDebt - g.Current) / *g.OriginalDebt)
	}
	if g.Target <= 0 {
		return 1
	}
	return clamp01(g.Current / g.Target)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// GoalPatch lists every updatable goal field.
type GoalPatch struct {
	Name             Field[string]
	Current          Field[float64]
	Target           Field[float64]
	Category         Field[GoalCategory]
	TargetDate       Field[*civil.Date]
	Color            Field[string]
	IsDebt           Field[bool]
	OriginalDebt     Field[*float64]
	CompletedAt      Field[*time.Time]
	LinkedCategories Field[[]string]
	LinkedBillNames  Field[[]string]
}

// Apply returns g with every present field of p merged in.
func (p GoalPatch) Apply(g Goal) Goal {
	if v, ok := p.Name.Get(); ok {
		g.Name = v
	}
	if v, ok := p.Current.Get(); ok {
		g.Current = math.Max(0, v)
	}
	if v, ok := p.Target.Get(); ok {
		g.Target = v
	}
	if v, ok := p.Category.Get(); ok {
		g.Category = v
	}
	if v, ok := p.TargetDate.Get(); ok {
		g.TargetDate = v
	}
	if v, ok := p.Color.Get(); ok {
		g.Color = v
	}
	if v, ok := p.IsDebt.Get(); ok {
		g.IsDebt = v
	}
	if v, ok := p.OriginalDebt.Get(); ok {
		g.OriginalDebt = v
	}
	if v, ok := p.CompletedAt.Get(); ok {
		g.CompletedAt = v
	}
	if v, ok := p.LinkedCategories.Get(); ok {
		g.LinkedCategories = cloneStrings(v)
	}
	if v, ok := p.LinkedBillNames.Get(); ok {
		g.LinkedBillNames = cloneStrings(v)
	}
	return g
}

// Normalize clamps a set Current to zero or more.
func (p GoalPatch) Normalize() GoalPatch {
	if v, ok := p.Current.Get(); ok && v < 0 {
		p.Current = Set(0.0)
	}
	return p
}

// Empty reports whether the patch changes nothing.
func (p GoalPatch) Empty() bool {
	return !p.Name.IsSet() && !p.Current.IsSet() && !p.Target.IsSet() &&
		!p.Category.IsSet() && !p.TargetDate.IsSet() && !p.Color.IsSet() &&
		!p.IsDebt.IsSet() && !p.OriginalDebt.IsSet() && !p.CompletedAt.IsSet() &&
		!p.LinkedCategories.IsSet() && !p.LinkedBillNames.IsSet()
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
