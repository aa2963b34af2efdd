package domain

import (
	"cloud.google.com/go/civil"
)

// Bill is a recurring monthly charge.
type Bill struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Amount       float64     `json:"amount"`
	DueDay       int         `json:"dueDay"`
	LastPaid     *civil.Date `json:"lastPaid,omitempty"`
	LinkedGoalID string      `json:"linkedGoalId,omitempty"`
	Category     string      `json:"category,omitempty"`
	HouseholdID  string      `json:"household_id,omitempty"`
}

// Normalize applies the creation rules of the bills form: a positive amount
// and a due day between 1 and 31.
func (b Bill) Normalize() Bill {
	if b.Amount < 0 {
		b.Amount = -b.Amount
	}
	switch {
	case b.DueDay < 1:
		b.DueDay = 1
	case b.DueDay > 31:
		b.DueDay = 31
	}
	return b
}

// BillPatch lists every updatable bill field. LinkedGoalID and Category use
// the empty string for "none".
type BillPatch struct {
	Name         Field[string]
	Amount       Field[float64]
	DueDay       Field[int]
	LastPaid     Field[*civil.Date]
	LinkedGoalID Field[string]
	Category     Field[string]
}

// Apply returns b with every present field of p merged in.
func (p BillPatch) Apply(b Bill) Bill {
	if v, ok := p.Name.Get(); ok {
		b.Name = v
	}
	if v, ok := p.Amount.Get(); ok {
		b.Amount = v
	}
	if v, ok := p.DueDay.Get(); ok {
		b.DueDay = v
	}
	if v, ok := p.LastPaid.Get(); ok {
		b.LastPaid = v
	}
	if v, ok := p.LinkedGoalID.Get(); ok {
		b.LinkedGoalID = v
	}
	if v, ok := p.Category.Get(); ok {
		b.Category = v
	}
	return b
}

// Empty reports whether the patch changes nothing.
func (p BillPatch) Empty() bool {
	return !p.Name.IsSet() && !p.Amount.IsSet() && !p.DueDay.IsSet() &&
		!p.LastPaid.IsSet() && !p.LinkedGoalID.IsSet() && !p.Category.IsSet()
}
