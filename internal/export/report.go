// Package export renders budgets for spreadsheets: a Google Sheets tab per
// identity and downloadable XLSX workbooks.
package export

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Ayushsunny/Budgease/internal/core"
)

// Exporter publishes one identity's budget somewhere outside the app.
type Exporter interface {
	Export(ctx context.Context, identity core.Identity, b core.Budget) error
}

// SummaryHeader is the first row of every summary table.
var SummaryHeader = []any{"Category", "Allocation", "Spent", "Remaining", "Expenses"}

// Rows lays a summary out as a table: the header, one row per category in
// budget order, then the totals.
func Rows(s core.Summary) [][]any {
	rows := make([][]any, 0, len(s.Categories)+5)
	rows = append(rows, SummaryHeader)
	expenses := 0
	for _, c := range s.Categories {
		rows = append(rows, []any{c.Name, c.Allocation, c.Spent, c.Remaining, c.Expenses})
		expenses += c.Expenses
	}
	left := decimal.NewFromFloat(s.TotalAllocated).Sub(decimal.NewFromFloat(s.TotalSpent))
	rows = append(rows,
		[]any{"Total", s.TotalAllocated, s.TotalSpent, left.InexactFloat64(), expenses},
		[]any{},
		[]any{"Salary", s.Salary},
		[]any{"Remaining", s.Remaining},
		[]any{"Unallocated", s.Unallocated},
	)
	return rows
}

// ExpenseHeader is the first row of the expense listing.
var ExpenseHeader = []any{"Category", "Date", "Amount", "Note"}

// ExpenseRows lists every expense, grouped by category in budget order.
func ExpenseRows(b core.Budget) [][]any {
	rows := [][]any{ExpenseHeader}
	for _, c := range b.Categories {
		for _, e := range c.Expenses {
			rows = append(rows, []any{c.Name, e.Date, e.Amount, e.Note})
		}
	}
	return rows
}
