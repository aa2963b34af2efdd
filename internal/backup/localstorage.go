package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/twocents/internal/domain"
)

// Browser storage keys of the web app.
const (
	KeyLedger   = "twocents.ledger.v1"
	KeyGoals    = "twocents-goals"
	KeyBills    = "twocents.recurring.v1"
	KeySettings = "twocents.settings.v1"
)

// The browser app stored dates as loose ISO strings: empty for "never" and
// occasionally with a time part.
type legacyTransaction struct {
	ID       string  `json:"id"`
	Date     string  `json:"date"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Note     string  `json:"note"`
	Who      string  `json:"who"`
}

type legacyBill struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Amount       float64 `json:"amount"`
	DueDay       int     `json:"dueDay"`
	LastPaid     string  `json:"lastPaid"`
	LinkedGoalID string  `json:"linkedGoalId"`
	Category     string  `json:"category"`
}

type legacyGoal struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Current          float64             `json:"current"`
	Target           float64             `json:"target"`
	Category         domain.GoalCategory `json:"category"`
	TargetDate       string              `json:"targetDate"`
	Color            string              `json:"color"`
	IsDebt           bool                `json:"isDebt"`
	OriginalDebt     *float64            `json:"originalDebt"`
	CompletedAt      string              `json:"completedAt"`
	LinkedCategories []string            `json:"linkedCategories"`
	LinkedBillNames  []string            `json:"linkedBillNames"`
}

// ReadLocalStorage decodes a dump of the browser's storage, the object
// produced by JSON.stringify(localStorage), and converts it with
// FromLocalStorage.
func ReadLocalStorage(r io.Reader) (Snapshot, error) {
	var dump map[string]string
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return Snapshot{}, fmt.Errorf("ReadLocalStorage: %w", err)
	}
	return FromLocalStorage(dump)
}

// FromLocalStorage builds a snapshot from browser storage values keyed by
// storage key. Missing keys leave the matching part of the snapshot empty;
// unrelated keys are ignored.
func FromLocalStorage(dump map[string]string) (Snapshot, error) {
	var snap Snapshot

	if raw := dump[KeyLedger]; raw != "" {
		var txs []legacyTransaction
		if err := json.Unmarshal([]byte(raw), &txs); err != nil {
			return Snapshot{}, fmt.Errorf("FromLocalStorage: %s: %w", KeyLedger, err)
		}
		for _, t := range txs {
			d, err := legacyDate(t.Date)
			if err != nil || d == nil {
				return Snapshot{}, fmt.Errorf("FromLocalStorage: transaction %s: bad date %q", t.ID, t.Date)
			}
			snap.Transactions = append(snap.Transactions, domain.Transaction{
				ID:       t.ID,
				Date:     *d,
				Amount:   t.Amount,
				Category: t.Category,
				Note:     t.Note,
				Who:      t.Who,
			})
		}
	}

	if raw := dump[KeyGoals]; raw != "" {
		var goals []legacyGoal
		if err := json.Unmarshal([]byte(raw), &goals); err != nil {
			return Snapshot{}, fmt.Errorf("FromLocalStorage: %s: %w", KeyGoals, err)
		}
		for _, g := range goals {
			target, err := legacyDate(g.TargetDate)
			if err != nil {
				return Snapshot{}, fmt.Errorf("FromLocalStorage: goal %s: %w", g.ID, err)
			}
			goal := domain.Goal{
				ID:               g.ID,
				Name:             g.Name,
				Current:          g.Current,
				Target:           g.Target,
				Category:         g.Category,
				TargetDate:       target,
				Color:            g.Color,
				IsDebt:           g.IsDebt,
				OriginalDebt:     g.OriginalDebt,
				LinkedCategories: g.LinkedCategories,
				LinkedBillNames:  g.LinkedBillNames,
			}
			if !goal.Category.Valid() {
				goal.Category = domain.GoalOther
			}
			if g.CompletedAt != "" {
				at, err := time.Parse(time.RFC3339Nano, g.CompletedAt)
				if err != nil {
					return Snapshot{}, fmt.Errorf("FromLocalStorage: goal %s: completedAt: %w", g.ID, err)
				}
				goal.CompletedAt = &at
			}
			snap.Goals = append(snap.Goals, goal)
		}
	}

	if raw := dump[KeyBills]; raw != "" {
		var bills []legacyBill
		if err := json.Unmarshal([]byte(raw), &bills); err != nil {
			return Snapshot{}, fmt.Errorf("FromLocalStorage: %s: %w", KeyBills, err)
		}
		for _, b := range bills {
			paid, err := legacyDate(b.LastPaid)
			if err != nil {
				return Snapshot{}, fmt.Errorf("FromLocalStorage: bill %s: %w", b.ID, err)
			}
			snap.Bills = append(snap.Bills, domain.Bill{
				ID:           b.ID,
				Name:         b.Name,
				Amount:       b.Amount,
				DueDay:       b.DueDay,
				LastPaid:     paid,
				LinkedGoalID: b.LinkedGoalID,
				Category:     b.Category,
			})
		}
	}

	if raw := dump[KeySettings]; raw != "" {
		s := domain.DefaultSettings()
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return Snapshot{}, fmt.Errorf("FromLocalStorage: %s: %w", KeySettings, err)
		}
		snap.Settings = &s
	}

	return snap, nil
}

// legacyDate parses the date part of s. An empty s is no date.
func legacyDate(s string) (*civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if len(s) > 10 {
		s = s[:10]
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
