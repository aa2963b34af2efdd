// Package report computes the dashboard figures from a ledger snapshot.
package report

import (
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/twocents/internal/domain"
)

// Uncategorized collects spending without a category.
const Uncategorized = "Uncategorized"

// NearLimitPercent is the usage at which a category is flagged as close to
// its limit.
const NearLimitPercent = 80

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing d.
func MonthOf(d civil.Date) Month {
	return Month{Year: d.Year, Month: d.Month}
}

// Contains reports whether d falls in m.
func (m Month) Contains(d civil.Date) bool {
	return d.Year == m.Year && d.Month == m.Month
}

func (m Month) String() string {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// InMonth returns the transactions dated in m, keeping their order.
func InMonth(txns []domain.Transaction, m Month) []domain.Transaction {
	var out []domain.Transaction
	for _, t := range txns {
		if m.Contains(t.Date) {
			out = append(out, t)
		}
	}
	return out
}

// Summary is the monthly rollup.
type Summary struct {
	Month    Month
	Income   float64
	Spending float64
	Net      float64
	// SavingsRate is the share of income kept, in percent. It is zero when
	// there was no income.
	SavingsRate float64
}

// Monthly sums income and spending for m.
func Monthly(txns []domain.Transaction, m Month) Summary {
	s := Summary{Month: m}
	for _, t := range InMonth(txns, m) {
		switch {
		case t.Amount > 0:
			s.Income += t.Amount
		case t.Amount < 0:
			s.Spending += -t.Amount
		}
	}
	s.Net = s.Income - s.Spending
	if s.Income > 0 {
		s.SavingsRate = s.Net / s.Income * 100
	}
	return s
}

// SpentByCategory sums spending per category name for m.
func SpentByCategory(txns []domain.Transaction, m Month) map[string]float64 {
	out := make(map[string]float64)
	for _, t := range InMonth(txns, m) {
		if t.Amount >= 0 {
			continue
		}
		key := t.Category
		if key == "" {
			key = Uncategorized
		}
		out[key] += -t.Amount
	}
	return out
}

// CategoryRow is one category's budget usage.
type CategoryRow struct {
	Category domain.Category
	Spent    float64
	// Percent is the rounded share of the limit used, capped at 100.
	Percent   int
	Over      bool
	NearLimit bool
}

// CategoryProgress reports spending against each category limit for m, in
// the order of categories.
func CategoryProgress(txns []domain.Transaction, categories []domain.Category, m Month) []CategoryRow {
	spent := SpentByCategory(txns, m)
	rows := make([]CategoryRow, 0, len(categories))
	for _, c := range categories {
		row := CategoryRow{Category: c, Spent: round2(spent[c.Name])}
		if c.Limit > 0 {
			row.Percent = min(100, int(math.Round(row.Spent/c.Limit*100)))
		}
		row.Over = row.Spent > c.Limit
		row.NearLimit = !row.Over && row.Percent >= NearLimitPercent
		rows = append(rows, row)
	}
	return rows
}

// PartnerTotal is what one partner recorded.
type PartnerTotal struct {
	Name     string
	Income   float64
	Spending float64
}

// Partners splits a ledger between the two partners of couple mode.
type Partners struct {
	Partner1 PartnerTotal
	Partner2 PartnerTotal
	// Unassigned is spending recorded without a partner, or for a name that
	// is no longer configured.
	Unassigned float64
}

// Settlement returns who owes whom to split spending evenly. The amount is
// zero when both partners spent the same.
func (p Partners) Settlement() (from, to string, amount float64) {
	diff := p.Partner1.Spending - p.Partner2.Spending
	switch {
	case diff > 0:
		return p.Partner2.Name, p.Partner1.Name, round2(diff / 2)
	case diff < 0:
		return p.Partner1.Name, p.Partner2.Name, round2(-diff / 2)
	}
	return "", "", 0
}

// PartnerTotals attributes every transaction in txns to a partner by its
// who field, matched case-insensitively.
func PartnerTotals(txns []domain.Transaction, couple domain.CoupleMode) Partners {
	p := Partners{
		Partner1: PartnerTotal{Name: couple.Partner1Name},
		Partner2: PartnerTotal{Name: couple.Partner2Name},
	}
	for _, t := range txns {
		var dst *PartnerTotal
		switch who := strings.TrimSpace(t.Who); {
		case who == "":
		case strings.EqualFold(who, couple.Partner1Name):
			dst = &p.Partner1
		case strings.EqualFold(who, couple.Partner2Name):
			dst = &p.Partner2
		}
		if dst == nil {
			if t.Amount < 0 {
				p.Unassigned += -t.Amount
			}
			continue
		}
		if t.Amount > 0 {
			dst.Income += t.Amount
		} else {
			dst.Spending += -t.Amount
		}
	}
	return p
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
