package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/Ayushsunny/Budgease/internal/core"
)

const (
	SummarySheet  = "Summary"
	ExpensesSheet = "Expenses"
)

// WriteXLSX writes a workbook with a Summary sheet and an Expenses sheet.
// Negative remaining amounts are shown in red.
func WriteXLSX(w io.Writer, b core.Budget) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ExpensesSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	red, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: "C00000"}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	summary := Rows(core.Summarize(b))
	if err := writeRows(f, SummarySheet, summary); err != nil {
		return err
	}
	// Remaining is column D for categories and the total, column B for the
	// trailing salary block.
	for i, row := range summary[1:] {
		cell := ""
		switch {
		case len(row) >= 4:
			if v, ok := row[3].(float64); ok && v < 0 {
				cell, _ = excelize.CoordinatesToCellName(4, i+2)
			}
		case len(row) == 2 && row[0] == "Remaining":
			if v, ok := row[1].(float64); ok && v < 0 {
				cell, _ = excelize.CoordinatesToCellName(2, i+2)
			}
		}
		if cell != "" {
			if err := f.SetCellStyle(SummarySheet, cell, cell, red); err != nil {
				return fmt.Errorf("style %s: %w", cell, err)
			}
		}
	}

	if err := writeRows(f, ExpensesSheet, ExpenseRows(b)); err != nil {
		return err
	}

	for _, sheet := range []string{SummarySheet, ExpensesSheet} {
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return fmt.Errorf("style header of %s: %w", sheet, err)
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 20)
	_ = f.SetColWidth(SummarySheet, "B", "E", 12)
	_ = f.SetColWidth(ExpensesSheet, "A", "A", 20)
	_ = f.SetColWidth(ExpensesSheet, "B", "B", 26)
	_ = f.SetColWidth(ExpensesSheet, "C", "C", 12)
	_ = f.SetColWidth(ExpensesSheet, "D", "D", 30)

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
