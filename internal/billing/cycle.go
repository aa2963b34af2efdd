// Package billing holds the due-date and billing-cycle arithmetic for
// recurring bills. Everything here is pure: callers pass the reference date.
package billing

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/twocents/internal/domain"
)

// Today returns the calendar date of now in now's location.
func Today(now time.Time) civil.Date {
	return civil.DateOf(now)
}

// LastDayOfMonth returns the number of days in the given month.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDay limits day to the valid days of the month, so a due day of 31
// falls on the 28th (or 29th) in February.
func ClampDay(year int, month time.Month, day int) int {
	if day < 1 {
		day = 1
	}
	return min(day, LastDayOfMonth(year, month))
}

func dueIn(year int, month time.Month, dueDay int) civil.Date {
	return civil.Date{Year: year, Month: month, Day: ClampDay(year, month, dueDay)}
}

func prevMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

// NextDueDate returns this month's due date if it has not passed yet,
// otherwise next month's.
func NextDueDate(dueDay int, ref civil.Date) civil.Date {
	candidate := dueIn(ref.Year, ref.Month, dueDay)
	if !candidate.Before(ref) {
		return candidate
	}
	y, m := nextMonth(ref.Year, ref.Month)
	return dueIn(y, m, dueDay)
}

// CycleStart returns the most recent due date on or before ref, which opens
// the current billing cycle.
func CycleStart(ref civil.Date, dueDay int) civil.Date {
	thisMonth := dueIn(ref.Year, ref.Month, dueDay)
	if !thisMonth.After(ref) {
		return thisMonth
	}
	y, m := prevMonth(ref.Year, ref.Month)
	return dueIn(y, m, dueDay)
}

// IsPaidThisCycle reports whether the bill's last payment falls inside the
// cycle containing ref.
func IsPaidThisCycle(b domain.Bill, ref civil.Date) bool {
	if b.LastPaid == nil {
		return false
	}
	return !b.LastPaid.Before(CycleStart(ref, b.DueDay))
}

// DaysBetween returns the whole days from a to b, negative when b is earlier.
func DaysBetween(a, b civil.Date) int {
	return b.DaysSince(a)
}
