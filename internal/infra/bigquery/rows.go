package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/twocents/internal/domain"
)

type TransactionRow struct {
	TransactionID   string              `bigquery:"transaction_id"`
	HouseholdID     bigquery.NullString `bigquery:"household_id"`
	TransactionDate civil.Date          `bigquery:"transaction_date"`
	Amount          float64             `bigquery:"amount"`
	Category        bigquery.NullString `bigquery:"category"`
	Note            bigquery.NullString `bigquery:"note"`
	Who             bigquery.NullString `bigquery:"who"`
}

func (r TransactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:          r.TransactionID,
		Date:        r.TransactionDate,
		Amount:      r.Amount,
		Category:    r.Category.StringVal,
		Note:        r.Note.StringVal,
		Who:         r.Who.StringVal,
		HouseholdID: r.HouseholdID.StringVal,
	}
}

type GoalRow struct {
	GoalID           string                 `bigquery:"goal_id"`
	HouseholdID      bigquery.NullString    `bigquery:"household_id"`
	Name             string                 `bigquery:"name"`
	Current          float64                `bigquery:"current"`
	Target           float64                `bigquery:"target"`
	Category         string                 `bigquery:"category"`
	TargetDate       bigquery.NullDate      `bigquery:"target_date"`
	Color            string                 `bigquery:"color"`
	IsDebt           bool                   `bigquery:"is_debt"`
	OriginalDebt     bigquery.NullFloat64   `bigquery:"original_debt"`
	CompletedAt      bigquery.NullTimestamp `bigquery:"completed_at"`
	LinkedCategories []string               `bigquery:"linked_categories"`
	LinkedBillNames  []string               `bigquery:"linked_bill_names"`
}

func goalRow(g domain.Goal) GoalRow {
	r := GoalRow{
		GoalID:           g.ID,
		HouseholdID:      nullString(g.HouseholdID),
		Name:             g.Name,
		Current:          g.Current,
		Target:           g.Target,
		Category:         string(g.Category),
		Color:            g.Color,
		IsDebt:           g.IsDebt,
		LinkedCategories: nonNil(g.LinkedCategories),
		LinkedBillNames:  nonNil(g.LinkedBillNames),
	}
	if g.TargetDate != nil {
		r.TargetDate = bigquery.NullDate{Date: *g.TargetDate, Valid: true}
	}
	if g.OriginalDebt != nil {
		r.OriginalDebt = bigquery.NullFloat64{Float64: *g.OriginalDebt, Valid: true}
	}
	if g.CompletedAt != nil {
		r.CompletedAt = bigquery.NullTimestamp{Timestamp: g.CompletedAt.UTC(), Valid: true}
	}
	return r
}

func (r GoalRow) toDomain() domain.Goal {
	g := domain.Goal{
		ID:               r.GoalID,
		Name:             r.Name,
		Current:          r.Current,
		Target:           r.Target,
		Category:         domain.GoalCategory(r.Category),
		Color:            r.Color,
		IsDebt:           r.IsDebt,
		LinkedCategories: r.LinkedCategories,
		LinkedBillNames:  r.LinkedBillNames,
		HouseholdID:      r.HouseholdID.StringVal,
	}
	if r.TargetDate.Valid {
		d := r.TargetDate.Date
		g.TargetDate = &d
	}
	if r.OriginalDebt.Valid {
		v := r.OriginalDebt.Float64
		g.OriginalDebt = &v
	}
	if r.CompletedAt.Valid {
		at := r.CompletedAt.Timestamp
		g.CompletedAt = &at
	}
	return g
}

// params returns the row's columns as query parameters named after them.
func (r GoalRow) params() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "goal_id", Value: r.GoalID},
		{Name: "household_id", Value: r.HouseholdID},
		{Name: "name", Value: r.Name},
		{Name: "current", Value: r.Current},
		{Name: "target", Value: r.Target},
		{Name: "category", Value: r.Category},
		{Name: "target_date", Value: r.TargetDate},
		{Name: "color", Value: r.Color},
		{Name: "is_debt", Value: r.IsDebt},
		{Name: "original_debt", Value: r.OriginalDebt},
		{Name: "completed_at", Value: r.CompletedAt},
		{Name: "linked_categories", Value: r.LinkedCategories},
		{Name: "linked_bill_names", Value: r.LinkedBillNames},
	}
}

type BillRow struct {
	BillID       string              `bigquery:"bill_id"`
	HouseholdID  bigquery.NullString `bigquery:"household_id"`
	Name         string              `bigquery:"name"`
	Amount       float64             `bigquery:"amount"`
	DueDay       int64               `bigquery:"due_day"`
	LastPaid     bigquery.NullDate   `bigquery:"last_paid"`
	LinkedGoalID bigquery.NullString `bigquery:"linked_goal_id"`
	Category     bigquery.NullString `bigquery:"category"`
}

func billRow(b domain.Bill) BillRow {
	r := BillRow{
		BillID:       b.ID,
		HouseholdID:  nullString(b.HouseholdID),
		Name:         b.Name,
		Amount:       b.Amount,
		DueDay:       int64(b.DueDay),
		LinkedGoalID: nullString(b.LinkedGoalID),
		Category:     nullString(b.Category),
	}
	if b.LastPaid != nil {
		r.LastPaid = bigquery.NullDate{Date: *b.LastPaid, Valid: true}
	}
	return r
}

func (r BillRow) toDomain() domain.Bill {
	b := domain.Bill{
		ID:           r.BillID,
		Name:         r.Name,
		Amount:       r.Amount,
		DueDay:       int(r.DueDay),
		LinkedGoalID: r.LinkedGoalID.StringVal,
		Category:     r.Category.StringVal,
		HouseholdID:  r.HouseholdID.StringVal,
	}
	if r.LastPaid.Valid {
		d := r.LastPaid.Date
		b.LastPaid = &d
	}
	return b
}

func (r BillRow) params() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "bill_id", Value: r.BillID},
		{Name: "household_id", Value: r.HouseholdID},
		{Name: "name", Value: r.Name},
		{Name: "amount", Value: r.Amount},
		{Name: "due_day", Value: r.DueDay},
		{Name: "last_paid", Value: r.LastPaid},
		{Name: "linked_goal_id", Value: r.LinkedGoalID},
		{Name: "category", Value: r.Category},
	}
}

type SettingsRow struct {
	Currency   string `bigquery:"currency"`
	UIMode     string `bigquery:"ui_mode"`
	Categories string `bigquery:"categories"`
	CoupleMode string `bigquery:"couple_mode"`
}

func settingsRow(s domain.Settings) (SettingsRow, error) {
	cats, err := json.Marshal(nonNil(s.Categories))
	if err != nil {
		return SettingsRow{}, fmt.Errorf("categories: %w", err)
	}
	couple, err := json.Marshal(s.CoupleMode)
	if err != nil {
		return SettingsRow{}, fmt.Errorf("couple mode: %w", err)
	}
	return SettingsRow{
		Currency:   s.Currency,
		UIMode:     string(s.UIMode),
		Categories: string(cats),
		CoupleMode: string(couple),
	}, nil
}

func (r SettingsRow) toDomain() (domain.Settings, error) {
	s := domain.Settings{
		Currency: r.Currency,
		UIMode:   domain.UIMode(r.UIMode),
	}
	if err := json.Unmarshal([]byte(r.Categories), &s.Categories); err != nil {
		return domain.Settings{}, fmt.Errorf("categories: %w", err)
	}
	if err := json.Unmarshal([]byte(r.CoupleMode), &s.CoupleMode); err != nil {
		return domain.Settings{}, fmt.Errorf("couple mode: %w", err)
	}
	return s, nil
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// nonNil turns nil into an empty slice. BigQuery rejects NULL arrays.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func now() bigquery.QueryParameter {
	return bigquery.QueryParameter{Name: "now", Value: time.Now().UTC()}
}
