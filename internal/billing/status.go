package billing

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/twocents/internal/domain"
)

// Status is the display state of a bill. It is derived, never stored.
type Status string

const (
	StatusPaid     Status = "paid"
	StatusOverdue  Status = "overdue"
	StatusDueSoon  Status = "due soon"
	StatusUpcoming Status = "upcoming"
)

// DueSoonDays is the window in which an unpaid bill counts as due soon.
const DueSoonDays = 3

// Row is a bill with its derived cycle information.
type Row struct {
	Bill          domain.Bill
	NextDue       civil.Date
	DaysUntil     int
	PaidThisCycle bool
	Status        Status
}

// Describe derives the row for a single bill.
func Describe(b domain.Bill, ref civil.Date) Row {
	next := NextDueDate(b.DueDay, ref)
	r := Row{
		Bill:          b,
		NextDue:       next,
		DaysUntil:     DaysBetween(ref, next),
		PaidThisCycle: IsPaidThisCycle(b, ref),
	}
	switch {
	case r.PaidThisCycle:
		r.Status = StatusPaid
	case r.DaysUntil < 0:
		r.Status = StatusOverdue
	case r.DaysUntil <= DueSoonDays:
		r.Status = StatusDueSoon
	default:
		r.Status = StatusUpcoming
	}
	return r
}

// StatusOf returns only the status for b.
func StatusOf(b domain.Bill, ref civil.Date) Status {
	return Describe(b, ref).Status
}

// Rows describes every bill, unpaid bills first, each group ordered by the
// next due date.
func Rows(bills []domain.Bill, ref civil.Date) []Row {
	rows := make([]Row, 0, len(bills))
	for _, b := range bills {
		rows = append(rows, Describe(b, ref))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PaidThisCycle != rows[j].PaidThisCycle {
			return !rows[i].PaidThisCycle
		}
		return rows[i].NextDue.Before(rows[j].NextDue)
	})
	return rows
}

// TotalDue sums the amounts of bills not yet paid this cycle.
func TotalDue(rows []Row) float64 {
	var total float64
	for _, r := range rows {
		if !r.PaidThisCycle {
			total += r.Bill.Amount
		}
	}
	return total
}
