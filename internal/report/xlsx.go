package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/twocents/internal/domain"
)

const (
	transactionsSheet = "Transactions"
	summarySheet      = "Summary"
)

var border = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
}

// WriteXLSX writes a workbook with the month's transactions and a summary
// sheet holding the rollup and category usage.
func WriteXLSX(w io.Writer, txns []domain.Transaction, settings domain.Settings, m Month) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", transactionsSheet); err != nil {
		return fmt.Errorf("WriteXLSX: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("WriteXLSX: add sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("WriteXLSX: header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4, Border: border})
	if err != nil {
		return fmt.Errorf("WriteXLSX: money style: %w", err)
	}

	if err := writeTransactions(f, InMonth(txns, m), settings, header, money); err != nil {
		return fmt.Errorf("WriteXLSX: %w", err)
	}
	if err := writeSummary(f, txns, settings, m, header, money); err != nil {
		return fmt.Errorf("WriteXLSX: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("WriteXLSX: write: %w", err)
	}
	return nil
}

func writeTransactions(f *excelize.File, txns []domain.Transaction, settings domain.Settings, header, money int) error {
	cols := []string{"Date", "Amount", "Category", "Note"}
	if settings.CoupleMode.Enabled {
		cols = append(cols, "Who")
	}
	if err := writeRow(f, transactionsSheet, 1, toAny(cols)); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := f.SetCellStyle(transactionsSheet, "A1", last, header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	f.SetColWidth(transactionsSheet, "A", "A", 12)
	f.SetColWidth(transactionsSheet, "C", "D", 24)

	for i, t := range txns {
		row := i + 2
		values := []any{t.Date.String(), t.Amount, t.Category, t.Note}
		if settings.CoupleMode.Enabled {
			values = append(values, t.Who)
		}
		if err := writeRow(f, transactionsSheet, row, values); err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetCellStyle(transactionsSheet, cell, cell, money); err != nil {
			return fmt.Errorf("style amount: %w", err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, txns []domain.Transaction, settings domain.Settings, m Month, header, money int) error {
	s := Monthly(txns, m)
	rows := [][]any{
		{"Month", m.String()},
		{"Currency", settings.Currency},
		{"Income", s.Income},
		{"Spending", s.Spending},
		{"Net", s.Net},
		{"Savings rate %", round2(s.SavingsRate)},
	}
	for i, r := range rows {
		if err := writeRow(f, summarySheet, i+1, r); err != nil {
			return err
		}
	}
	f.SetColWidth(summarySheet, "A", "A", 20)

	start := len(rows) + 2
	if err := writeRow(f, summarySheet, start, []any{"Category", "Limit", "Spent", "Used %"}); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(4, start)
	first, _ := excelize.CoordinatesToCellName(1, start)
	if err := f.SetCellStyle(summarySheet, first, last, header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, c := range CategoryProgress(txns, settings.Categories, m) {
		row := start + 1 + i
		if err := writeRow(f, summarySheet, row, []any{c.Category.Name, c.Category.Limit, c.Spent, c.Percent}); err != nil {
			return err
		}
		from, _ := excelize.CoordinatesToCellName(2, row)
		to, _ := excelize.CoordinatesToCellName(3, row)
		if err := f.SetCellStyle(summarySheet, from, to, money); err != nil {
			return fmt.Errorf("style amount: %w", err)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
