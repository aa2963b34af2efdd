package domain

import (
	"cloud.google.com/go/civil"
)

// Transaction is one ledger entry. Transactions are immutable once created:
// the ledger only supports add, remove and clear.
//
// Amount is signed: income is positive, spending negative. Category is empty
// for income.
type Transaction struct {
	ID          string     `json:"id"`
	Date        civil.Date `json:"date"`
	Amount      float64    `json:"amount"`
	Category    string     `json:"category,omitempty"`
	Note        string     `json:"note,omitempty"`
	Who         string     `json:"who,omitempty"`
	HouseholdID string     `json:"household_id,omitempty"`
}

// NewTransaction is a transaction before the backend has assigned an id.
type NewTransaction struct {
	Date     civil.Date `json:"date"`
	Amount   float64    `json:"amount"`
	Category string     `json:"category,omitempty"`
	Note     string     `json:"note,omitempty"`
	Who      string     `json:"who,omitempty"`
}

// WithID returns the canonical record for t under the given id and partition.
func (t NewTransaction) WithID(id, householdID string) Transaction {
	return Transaction{
		ID:          id,
		Date:        t.Date,
		Amount:      t.Amount,
		Category:    t.Category,
		Note:        t.Note,
		Who:         t.Who,
		HouseholdID: householdID,
	}
}

// IsIncome reports whether the transaction adds money.
func (t Transaction) IsIncome() bool {
	return t.Amount > 0
}

// NewerFirst orders transactions by date descending, the canonical ledger order.
func NewerFirst(a, b Transaction) int {
	return b.Date.Compare(a.Date)
}
