// Package wire holds the JSON shapes of the REST API and their conversion
// to domain values. The server handlers and the HTTP backend both use it.
package wire

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/twocents/internal/domain"
)

// Headers carrying the caller's session and client identity.
const (
	HeaderUserID      = "X-User-ID"
	HeaderHouseholdID = "X-Household-ID"
	HeaderClientID    = "X-Client-ID"
)

type Transaction struct {
	ID          string     `json:"id"`
	Date        civil.Date `json:"date"`
	Amount      float64    `json:"amount"`
	Category    string     `json:"category,omitempty"`
	Note        string     `json:"note,omitempty"`
	Who         string     `json:"who,omitempty"`
	HouseholdID string     `json:"household_id,omitempty"`
}

type NewTransaction struct {
	Date     civil.Date `json:"date"`
	Amount   float64    `json:"amount"`
	Category string     `json:"category,omitempty"`
	Note     string     `json:"note,omitempty"`
	Who      string     `json:"who,omitempty"`
}

type Goal struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Current          float64     `json:"current"`
	Target           float64     `json:"target"`
	Category         string      `json:"category"`
	TargetDate       *civil.Date `json:"target_date"`
	Color            string      `json:"color"`
	IsDebt           bool        `json:"is_debt"`
	OriginalDebt     *float64    `json:"original_debt"`
	CompletedAt      *time.Time  `json:"completed_at"`
	LinkedCategories []string    `json:"linked_categories"`
	LinkedBillNames  []string    `json:"linked_bill_names"`
	HouseholdID      string      `json:"household_id,omitempty"`
}

type Bill struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Amount       float64     `json:"amount"`
	DueDay       int         `json:"due_day"`
	LastPaid     *civil.Date `json:"last_paid"`
	LinkedGoalID *string     `json:"linked_goal_id"`
	Category     *string     `json:"category"`
	HouseholdID  string      `json:"household_id,omitempty"`
}

type Category struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Limit float64 `json:"limit"`
}

type CoupleMode struct {
	Enabled      bool   `json:"enabled"`
	Partner1Name string `json:"partner1_name"`
	Partner2Name string `json:"partner2_name"`
}

type Settings struct {
	Currency   string     `json:"currency"`
	UIMode     string     `json:"ui_mode"`
	Categories []Category `json:"categories"`
	CoupleMode CoupleMode `json:"couple_mode"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
}

func FromTransaction(t domain.Transaction) Transaction {
	return Transaction{
		ID:          t.ID,
		Date:        t.Date,
		Amount:      t.Amount,
		Category:    t.Category,
		Note:        t.Note,
		Who:         t.Who,
		HouseholdID: t.HouseholdID,
	}
}

func (t Transaction) Domain() domain.Transaction {
	return domain.Transaction{
		ID:          t.ID,
		Date:        t.Date,
		Amount:      t.Amount,
		Category:    t.Category,
		Note:        t.Note,
		Who:         t.Who,
		HouseholdID: t.HouseholdID,
	}
}

func FromNewTransaction(t domain.NewTransaction) NewTransaction {
	return NewTransaction{Date: t.Date, Amount: t.Amount, Category: t.Category, Note: t.Note, Who: t.Who}
}

func (t NewTransaction) Domain() domain.NewTransaction {
	return domain.NewTransaction{Date: t.Date, Amount: t.Amount, Category: t.Category, Note: t.Note, Who: t.Who}
}

func FromGoal(g domain.Goal) Goal {
	return Goal{
		ID:               g.ID,
		Name:             g.Name,
		Current:          g.Current,
		Target:           g.Target,
		Category:         string(g.Category),
		TargetDate:       g.TargetDate,
		Color:            g.Color,
		IsDebt:           g.IsDebt,
		OriginalDebt:     g.OriginalDebt,
		CompletedAt:      g.CompletedAt,
		LinkedCategories: g.LinkedCategories,
		LinkedBillNames:  g.LinkedBillNames,
		HouseholdID:      g.HouseholdID,
	}
}

func (g Goal) Domain() domain.Goal {
	return domain.Goal{
		ID:               g.ID,
		Name:             g.Name,
		Current:          g.Current,
		Target:           g.Target,
		Category:         domain.GoalCategory(g.Category),
		TargetDate:       g.TargetDate,
		Color:            g.Color,
		IsDebt:           g.IsDebt,
		OriginalDebt:     g.OriginalDebt,
		CompletedAt:      g.CompletedAt,
		LinkedCategories: g.LinkedCategories,
		LinkedBillNames:  g.LinkedBillNames,
		HouseholdID:      g.HouseholdID,
	}
}

func FromBill(b domain.Bill) Bill {
	return Bill{
		ID:           b.ID,
		Name:         b.Name,
		Amount:       b.Amount,
		DueDay:       b.DueDay,
		LastPaid:     b.LastPaid,
		LinkedGoalID: optional(b.LinkedGoalID),
		Category:     optional(b.Category),
		HouseholdID:  b.HouseholdID,
	}
}

func (b Bill) Domain() domain.Bill {
	return domain.Bill{
		ID:           b.ID,
		Name:         b.Name,
		Amount:       b.Amount,
		DueDay:       b.DueDay,
		LastPaid:     b.LastPaid,
		LinkedGoalID: deref(b.LinkedGoalID),
		Category:     deref(b.Category),
		HouseholdID:  b.HouseholdID,
	}
}

func FromSettings(s domain.Settings) Settings {
	cats := make([]Category, 0, len(s.Categories))
	for _, c := range s.Categories {
		cats = append(cats, Category(c))
	}
	return Settings{
		Currency:   s.Currency,
		UIMode:     string(s.UIMode),
		Categories: cats,
		CoupleMode: CoupleMode(s.CoupleMode),
	}
}

func (s Settings) Domain() domain.Settings {
	return domain.Settings{
		Currency:   s.Currency,
		UIMode:     domain.UIMode(s.UIMode),
		Categories: categoriesDomain(s.Categories),
		CoupleMode: domain.CoupleMode(s.CoupleMode),
	}
}

func categoriesDomain(in []Category) []domain.Category {
	out := make([]domain.Category, 0, len(in))
	for _, c := range in {
		out = append(out, domain.Category(c))
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
