package billing

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/twocents/internal/domain"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestClampDay(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month time.Month
		day   int
		want  int
	}{
		{"31 in a 30-day month", 2024, time.April, 31, 30},
		{"31 in non-leap february", 2023, time.February, 31, 28},
		{"31 in leap february", 2024, time.February, 31, 29},
		{"valid day untouched", 2024, time.January, 15, 15},
		{"zero raised to first", 2024, time.January, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampDay(tt.year, tt.month, tt.day))
		})
	}
}

func TestNextDueDate(t *testing.T) {
	tests := []struct {
		name   string
		dueDay int
		ref    civil.Date
		want   civil.Date
	}{
		{"end of month in february", 31, date(2023, time.February, 15), date(2023, time.February, 28)},
		{"due today counts as this month", 15, date(2024, time.March, 15), date(2024, time.March, 15)},
		{"passed rolls to next month", 10, date(2024, time.March, 15), date(2024, time.April, 10)},
		{"december rolls into january", 5, date(2024, time.December, 20), date(2025, time.January, 5)},
		{"next month is clamped", 31, date(2024, time.January, 31), date(2024, time.January, 31)},
		{"clamped after rollover", 30, date(2023, time.January, 31), date(2023, time.February, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDueDate(tt.dueDay, tt.ref))
		})
	}
}

func TestCycleStart(t *testing.T) {
	tests := []struct {
		name   string
		ref    civil.Date
		dueDay int
		want   civil.Date
	}{
		{"due earlier this month", date(2024, time.March, 15), 1, date(2024, time.March, 1)},
		{"due today", date(2024, time.March, 15), 15, date(2024, time.March, 15)},
		{"due later this month", date(2024, time.March, 15), 20, date(2024, time.February, 20)},
		{"previous month clamped", date(2024, time.March, 15), 31, date(2024, time.February, 29)},
		{"january looks back to december", date(2024, time.January, 3), 10, date(2023, time.December, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CycleStart(tt.ref, tt.dueDay))
		})
	}
}

func TestIsPaidThisCycle(t *testing.T) {
	ref := date(2024, time.May, 15)
	paidThisMonth := date(2024, time.May, 1)
	paidLastMonth := date(2024, time.April, 1)

	assert.True(t, IsPaidThisCycle(domain.Bill{DueDay: 1, LastPaid: &paidThisMonth}, ref))
	assert.False(t, IsPaidThisCycle(domain.Bill{DueDay: 1, LastPaid: &paidLastMonth}, ref))
	assert.False(t, IsPaidThisCycle(domain.Bill{DueDay: 1}, ref))

	// paid early, before the due date that opens the current cycle
	early := date(2024, time.April, 28)
	assert.False(t, IsPaidThisCycle(domain.Bill{DueDay: 1, LastPaid: &early}, ref))
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 3, DaysBetween(date(2024, time.February, 27), date(2024, time.March, 1)))
	assert.Equal(t, -1, DaysBetween(date(2024, time.March, 2), date(2024, time.March, 1)))
}

func TestToday(t *testing.T) {
	now := time.Date(2024, time.July, 4, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, date(2024, time.July, 4), Today(now))
}
